package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"burrow/internal/registry"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <name|all>",
		Short: "Start one or all registered instances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLifecycle(args[0], "start", func(a *app, ctx context.Context, name string) error {
				return a.orch.Start(ctx, name)
			})
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name|all>",
		Short: "Stop one or all registered instances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLifecycle(args[0], "stop", func(a *app, ctx context.Context, name string) error {
				return a.orch.Stop(ctx, name)
			})
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name|all>",
		Short: "Restart one or all registered instances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLifecycle(args[0], "restart", func(a *app, ctx context.Context, name string) error {
				return a.orch.Restart(ctx, name)
			})
		},
	}
}

// runLifecycle applies an orchestrator call to one registered instance or,
// for "all", to every entry in registry order. The registry is not mutated.
func runLifecycle(target, verb string, call func(*app, context.Context, string) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, cancel := a.commandContext()
	defer cancel()

	snap, err := a.store.Load()
	if err != nil {
		return err
	}

	var names []string
	if target == "all" {
		for _, e := range snap.Entries() {
			names = append(names, e.Name)
		}
		if len(names) == 0 {
			fmt.Println("No instances registered")
			return nil
		}
	} else {
		if !snap.Exists(target) {
			return fmt.Errorf("%w: %s", registry.ErrNotFound, target)
		}
		names = []string{target}
	}

	for _, name := range names {
		if err := call(a, ctx, name); err != nil {
			return fmt.Errorf("%s %s: %w", verb, name, err)
		}
		fmt.Printf("%s: %s\n", name, verb)
	}
	return nil
}

var logsFollow bool

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <name>",
		Short: "Show an instance's container logs",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogs,
	}
	cmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow log output")
	return cmd
}

func runLogs(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}

	snap, err := a.store.Load()
	if err != nil {
		return err
	}
	if !snap.Exists(name) {
		return fmt.Errorf("%w: %s", registry.ErrNotFound, name)
	}

	ctx, cancel := a.streamContext(0)
	defer cancel()

	return a.orch.Logs(ctx, name, logsFollow)
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> [port]",
		Short: "Register and start a new instance",
		Long: `Register a backend instance under <name>. Without an explicit port a free
one is drawn from the configured range. The routing map and compose manifest
are rewritten from the registry, then the container is started.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runAdd,
	}
}

func runAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	port := 0
	if len(args) == 2 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[1], err)
		}
		port = parsed
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, cancel := a.commandContext()
	defer cancel()

	entry, err := a.dispatcher.Add(ctx, name, port)
	if err != nil {
		return err
	}

	fmt.Printf("Registered %s on port %d (data: %s)\n", entry.Name, entry.Port, entry.DataDir)
	if a.registrar.Enabled() {
		fmt.Printf("Available at https://%s\n", a.registrar.Domain(entry.Name))
	}
	return nil
}

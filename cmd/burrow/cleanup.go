package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Stop orphan containers and repair artifact drift",
		Long: `Compare the orchestrator's running containers against the registry and stop
every managed container that has no registry entry. Then re-synthesize the
routing map and compose manifest from the registry, repairing any drift an
interrupted mutation left behind. The registry itself is never modified.`,
		RunE: runCleanup,
	}
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, cancel := a.commandContext()
	defer cancel()

	report, err := a.dispatcher.Reconcile(ctx)
	if report != nil {
		if len(report.OrphansStopped) == 0 {
			fmt.Println("No orphan containers")
		}
		for _, name := range report.OrphansStopped {
			fmt.Printf("Stopped orphan %s\n", name)
		}
		if len(report.DriftRepaired) == 0 {
			fmt.Println("No artifact drift")
		}
		for _, detail := range report.DriftRepaired {
			fmt.Printf("Repaired: %s\n", detail)
		}
	}
	return err
}

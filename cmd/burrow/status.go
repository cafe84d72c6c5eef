package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system health and the instance table",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, cancel := a.commandContext()
	defer cancel()

	if err := a.orch.Ping(ctx); err != nil {
		fmt.Printf("Docker daemon:  unreachable (%v)\n", err)
	} else {
		fmt.Println("Docker daemon:  ok")
	}

	snap, err := a.store.Load()
	if err != nil {
		return err
	}
	fmt.Printf("Registry:       %d instance(s) in %s\n", snap.Len(), a.cfg.RegistryPath)

	report, err := a.dispatcher.Verify()
	if err != nil {
		fmt.Printf("Topology:       unverifiable (%v)\n", err)
	} else if report.Clean() {
		fmt.Println("Topology:       consistent")
	} else {
		fmt.Printf("Topology:       DRIFT (%d finding(s), run cleanup to repair)\n", len(report.Details))
		for _, detail := range report.Details {
			fmt.Printf("  - %s\n", detail)
		}
	}

	fmt.Println()
	return printInstanceTable(a, ctx)
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the backend image via docker compose",
		RunE:  runBuild,
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	// Builds routinely outlive the per-command timeout; cap them separately.
	ctx, cancel := a.streamContext(30 * time.Minute)
	defer cancel()

	if err := a.orch.Build(ctx); err != nil {
		return err
	}
	fmt.Println("Build complete")
	return nil
}

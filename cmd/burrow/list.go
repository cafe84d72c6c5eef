package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered instances",
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, cancel := a.commandContext()
	defer cancel()

	return printInstanceTable(a, ctx)
}

// printInstanceTable renders the registry with best-effort live state. Reads
// take no lock; the snapshot may lag a concurrent mutation.
func printInstanceTable(a *app, ctx context.Context) error {
	snap, err := a.store.Load()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPORT\tSTATE\tLIVE PORT")
	for _, e := range snap.Entries() {
		state := "unknown"
		livePort := "-"
		if inst, err := a.orch.Status(ctx, e.Name); err == nil {
			state = inst.State
			if inst.HostPort != 0 {
				livePort = fmt.Sprintf("%d", inst.HostPort)
			}
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", e.Name, e.Port, state, livePort)
	}
	return w.Flush()
}

package main

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"burrow/internal/topology"
)

var (
	removePurge bool
	removeYes   bool
)

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Unregister and stop an instance",
		Long: `Unregister the instance, rewrite the routing map and compose manifest, and
stop its container. The data directory is kept unless --purge is given, in
which case deletion is confirmed interactively (or skipped with --yes).`,
		Args: cobra.ExactArgs(1),
		RunE: runRemove,
	}
	cmd.Flags().BoolVar(&removePurge, "purge", false, "also delete the instance data directory")
	cmd.Flags().BoolVar(&removeYes, "yes", false, "skip the purge confirmation prompt")
	return cmd
}

func runRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, cancel := a.commandContext()
	defer cancel()

	entry, err := a.dispatcher.Remove(ctx, name)

	// An orchestrator failure after the topology committed is reported but
	// must not block the purge decision: the instance is unregistered.
	var orchErr *topology.OrchestratorError
	if err != nil && !errors.As(err, &orchErr) {
		return err
	}
	if orchErr != nil {
		log.Printf("remove: warning: %v", orchErr)
	}

	fmt.Printf("Unregistered %s (port %d)\n", entry.Name, entry.Port)

	if removePurge && entry.DataDir != "" {
		if removeYes || confirm(fmt.Sprintf("Delete data directory %s?", entry.DataDir)) {
			if err := os.RemoveAll(entry.DataDir); err != nil {
				return fmt.Errorf("failed to delete data directory: %w", err)
			}
			fmt.Printf("Deleted %s\n", entry.DataDir)
		} else {
			fmt.Printf("Kept %s\n", entry.DataDir)
		}
	}

	if orchErr != nil {
		return orchErr
	}
	return nil
}

// confirm asks a y/N question on the terminal.
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

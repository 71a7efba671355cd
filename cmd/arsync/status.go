package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xdeelord24/ar-task-generator-sub000/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local state summary",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.close()

		state := a.engine.Snapshot()

		fmt.Printf("%s %s\n", ui.RenderAccent("Data dir:"), dataDir())
		fmt.Printf("%s %s\n", ui.RenderAccent("Storage key:"), a.rootKey)
		if a.remote.Available() {
			fmt.Printf("%s yes\n", ui.RenderAccent("Server credential:"))
		} else {
			fmt.Printf("%s no (local-only mode)\n", ui.RenderAccent("Server credential:"))
		}

		fmt.Println()
		fmt.Printf("Tasks:         %d\n", len(state.Tasks))
		fmt.Printf("Spaces:        %d\n", len(state.Spaces))
		fmt.Printf("Folders:       %d\n", len(state.Folders))
		fmt.Printf("Lists:         %d\n", len(state.Lists))
		fmt.Printf("Docs:          %d\n", len(state.Docs))
		fmt.Printf("Invitations:   %d\n", len(state.Invitations))
		fmt.Printf("Notifications: %d\n", len(state.Notifications))

		var shared int
		for _, sp := range state.Spaces {
			if sp.IsShared {
				shared++
			}
		}
		if shared > 0 {
			fmt.Printf("\n%s %d shared space(s)\n", ui.RenderMuted("↳"), shared)
		}
	},
}

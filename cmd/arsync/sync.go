package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xdeelord24/ar-task-generator-sub000/internal/reconcile"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass",
	Long: `Run a single reconciliation pass and exit.

This fetches shared resources, invitations and notifications from the
server, prunes anything whose access was revoked, merges the rest into
local state, and persists the result to both local stores.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.close()

		if !a.remote.Available() {
			fmt.Fprintf(os.Stderr, "Error: no server credential configured\n")
			os.Exit(1)
		}

		rec := reconcile.New(a.engine, a.remote, &reconcile.Config{
			Logger: newLogger("[reconcile] "),
		})

		fmt.Printf("%s Reconciling...\n", ui.RenderAccent("🔄"))
		start := time.Now()
		if err := rec.Reconcile(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "%s Reconcile failed: %v\n", ui.RenderError("✗"), err)
			os.Exit(1)
		}

		state := a.engine.Snapshot()
		fmt.Printf("%s Done in %s: %d tasks, %d spaces, %d lists, %d notifications\n",
			ui.RenderSuccess("✓"), time.Since(start).Round(time.Millisecond),
			len(state.Tasks), len(state.Spaces), len(state.Lists), len(state.Notifications))
	},
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xdeelord24/ar-task-generator-sub000/internal/realtime"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/reconcile"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync daemon",
	Long: `Run the sync engine in the foreground.

The daemon:
  1. Loads local state, merging the server's copy and shared resources
  2. Connects the realtime channel and joins resource rooms
  3. Reconciles shared data on an interval, on every (re)connect, and
     after every live event
  4. Shuts down cleanly on SIGINT/SIGTERM`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.close()

		rec := reconcile.New(a.engine, a.remote, &reconcile.Config{
			Interval: viper.GetDuration("sync.interval"),
			Logger:   newLogger("[reconcile] "),
		})

		var channel *realtime.Channel
		if wsURL := viper.GetString("realtime.url"); wsURL != "" && viper.GetString("user.id") != "" {
			channel, err = realtime.NewChannel(&realtime.Config{
				URL:       wsURL,
				UserID:    viper.GetString("user.id"),
				Rooms:     a.engine.SharedRooms,
				Handler:   a.engine,
				OnEvent:   rec.Kick,
				OnConnect: rec.Kick,
				Logger:    newLogger("[realtime] "),
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			a.engine.SetBroadcaster(channel)
			channel.Start()
		} else {
			fmt.Printf("%s realtime channel disabled (set realtime.url and user.id)\n", ui.RenderWarn("!"))
		}

		rec.Start()
		fmt.Printf("%s sync daemon running (interval %s)\n",
			ui.RenderAccent("▶"), viper.GetDuration("sync.interval"))

		sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-sigCtx.Done()

		fmt.Printf("\n%s shutting down\n", ui.RenderMuted("…"))
		rec.Stop()
		if channel != nil {
			channel.Stop()
		}
	},
}

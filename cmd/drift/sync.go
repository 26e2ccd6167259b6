package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftsync/drift/internal/notify"
	"github.com/driftsync/drift/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Sync queued changes now",
	Long: `Run one sync pass immediately, bypassing the network-quality gate and
any retry backoff. Changes that fail permanently are rolled back.`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")

		var logger *log.Logger
		if verbose {
			logger = log.New(os.Stderr, "[drift] ", log.LstdFlags)
		}

		ctx := context.Background()
		a, err := openApp(ctx, logger)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		pending, err := a.queue.Len(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if pending == 0 {
			fmt.Printf("%s Nothing to sync\n", ui.RenderPass("✓"))
			return
		}

		eng, err := a.newEngine(notify.Discard)
		if err != nil {
			fatalf("%v", err)
		}

		a.probeOnce(ctx)
		state := a.monitor.State()
		fmt.Printf("%s Syncing %d queued changes (%s)...\n",
			ui.RenderAccent("⇅"), pending, state.Quality)

		if !eng.ForceSync(ctx) {
			fatalf("another sync is already running")
		}

		status := eng.Status(ctx)
		if status.LastError != "" {
			fmt.Printf("%s Sync finished with failures: %s\n", ui.RenderWarn("⚠"), status.LastError)
			fmt.Printf("  %d changes still queued\n", status.PendingActions)
			os.Exit(1)
		}
		fmt.Printf("%s Sync complete, %d changes remaining\n", ui.RenderPass("✓"), status.PendingActions)
	},
}

func init() {
	syncCmd.Flags().BoolP("verbose", "v", false, "Log sync activity")
	rootCmd.AddCommand(syncCmd)
}

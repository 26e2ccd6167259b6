package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftsync/drift/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "sync",
	Short:   "Inspect the pending sync queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue counters",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		stats, err := a.queue.Stats(ctx)
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s queue stats\n\n", ui.RenderAccent("⇅"))
		fmt.Printf("  Total:    %d\n", stats.Total)
		fmt.Printf("  Pending:  %d\n", stats.Pending)
		if stats.Retrying > 0 {
			fmt.Printf("  Retrying: %s\n", ui.RenderWarn(fmt.Sprintf("%d", stats.Retrying)))
		} else {
			fmt.Printf("  Retrying: 0\n")
		}
		if stats.Failed > 0 {
			fmt.Printf("  Failed:   %s\n", ui.RenderFail(fmt.Sprintf("%d", stats.Failed)))
		}
		if stats.Total == 0 {
			fmt.Printf("\n%s nothing waiting to sync\n", ui.RenderPass("✓"))
		}
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending intents in sync order",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		pending, err := a.queue.Pending(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if len(pending) == 0 {
			fmt.Printf("%s queue is empty\n", ui.RenderPass("✓"))
			return
		}

		for _, in := range pending {
			at := time.UnixMilli(in.EnqueuedAt).Local().Format("15:04:05")
			op := string(in.Op)
			if in.Retries > 0 {
				op = ui.RenderWarn(op)
			}
			fmt.Printf("  %s %-6s %s", ui.RenderFaint(at), op, shortID(in.EntityID()))
			if in.Retries > 0 {
				fmt.Printf(" %s", ui.RenderFaint(fmt.Sprintf("(retry %d/%d)", in.Retries, a.queue.MaxRetries())))
			}
			fmt.Println()
		}
		fmt.Printf("\n%d pending\n", len(pending))
	},
}

func init() {
	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueListCmd)
	rootCmd.AddCommand(queueCmd)
}

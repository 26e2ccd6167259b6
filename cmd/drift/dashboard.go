package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driftsync/drift/internal/dashboard"
	"github.com/driftsync/drift/internal/ui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Serve the status dashboard without syncing",
	Long: `Serve the WebSocket status dashboard over the local database, without
running the sync engine. Useful for watching the queue while the daemon
runs elsewhere, or while offline.

Connect with a WebSocket client:
  ws://localhost:8421/ws

Messages:
  snapshot:       full state (sync, queue, todos, network)
  sync_complete:  a sync pass finished (daemon mode only)
  network_change: connectivity changed (daemon mode only)`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Dashboard.Addr
		}

		logger := log.New(os.Stderr, "[dashboard] ", log.LstdFlags)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, logger)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		server := dashboard.NewServer(func(ctx context.Context) dashboard.Snapshot {
			stats, err := a.queue.Stats(ctx)
			if err != nil {
				logger.Printf("Failed to read queue stats: %v", err)
			}
			return dashboard.Snapshot{
				Queue:   stats,
				Todos:   a.cache.Stats(),
				Network: a.monitor.State(),
			}
		}, &dashboard.Config{Addr: addr, Logger: logger})

		if err := server.Start(); err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s Dashboard on http://%s\n", ui.RenderAccent("⇅"), server.Addr())
		fmt.Printf("   WebSocket: ws://%s/ws\n", server.Addr())
		fmt.Printf("\nPress Ctrl+C to stop\n")

		<-ctx.Done()
		fmt.Println("\nShutting down...")
		if err := server.Stop(); err != nil {
			fatalf("shutdown: %v", err)
		}
	},
}

func init() {
	dashboardCmd.Flags().String("addr", "", "Listen address (default from config)")
	rootCmd.AddCommand(dashboardCmd)
}

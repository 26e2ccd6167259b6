package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/driftsync/drift/internal/config"
	"github.com/driftsync/drift/internal/dashboard"
	"github.com/driftsync/drift/internal/netmon"
	"github.com/driftsync/drift/internal/notify"
	"github.com/driftsync/drift/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run drift in the foreground as a daemon: watch connectivity, sync
queued changes automatically, and serve the local status dashboard.

The daemon:
  1. Probes network state periodically
  2. Syncs on a fixed interval, and immediately on reconnect
  3. Backs off exponentially after failed passes
  4. Reloads sync settings when the config file changes

Logs go to stderr, or to daemon.log_file (with rotation) when set.`,
	Run: func(cmd *cobra.Command, args []string) {
		noDashboard, _ := cmd.Flags().GetBool("no-dashboard")

		logger := log.New(os.Stderr, "[drift] ", log.LstdFlags)
		if cfg.Daemon.LogFile != "" {
			logger.SetOutput(&lumberjack.Logger{
				Filename:   cfg.Daemon.LogFile,
				MaxSize:    cfg.Daemon.LogMaxSizeMB,
				MaxBackups: cfg.Daemon.LogMaxBackups,
				MaxAge:     cfg.Daemon.LogMaxAgeDays,
				Compress:   true,
			})
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, logger)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		eng, err := a.newEngine(notify.NewLogNotifier(logger))
		if err != nil {
			fatalf("%v", err)
		}

		a.monitor.Start(ctx)
		defer a.monitor.Stop()
		eng.Start(ctx)
		defer eng.Stop()

		var server *dashboard.Server
		if !noDashboard {
			server = dashboard.NewServer(func(ctx context.Context) dashboard.Snapshot {
				stats, err := a.queue.Stats(ctx)
				if err != nil {
					logger.Printf("Failed to read queue stats: %v", err)
				}
				return dashboard.Snapshot{
					Sync:    eng.Status(ctx),
					Queue:   stats,
					Todos:   a.cache.Stats(),
					Network: a.monitor.State(),
				}
			}, &dashboard.Config{
				Addr:   cfg.Dashboard.Addr,
				Logger: logger,
			})
			if err := server.Start(); err != nil {
				fatalf("%v", err)
			}
			defer func() {
				if err := server.Stop(); err != nil {
					logger.Printf("Dashboard shutdown error: %v", err)
				}
			}()

			cancel := a.monitor.Subscribe(func(state netmon.NetworkState) {
				server.NotifyNetworkChange(state)
			})
			defer cancel()
		}

		// Sync tunables follow the config file while running.
		loader.Watch(func(fresh *config.Config, err error) {
			if err != nil {
				logger.Printf("Ignoring config change: %v", err)
				return
			}
			logger.Printf("Config reloaded")
			eng.SetAutoSyncInterval(fresh.Sync.AutoSyncInterval)
			a.monitor.SetWifiOnly(fresh.Sync.WifiOnly)
		})

		fmt.Printf("%s drift daemon running\n", ui.RenderAccent("⇅"))
		fmt.Printf("   Database:  %s\n", cfg.DatabasePath)
		if server != nil {
			fmt.Printf("   Dashboard: http://%s\n", server.Addr())
		}
		fmt.Printf("\nPress Ctrl+C to stop\n")

		<-ctx.Done()
		fmt.Println("\nShutting down...")
	},
}

func init() {
	daemonCmd.Flags().Bool("no-dashboard", false, "Disable the status dashboard")
	rootCmd.AddCommand(daemonCmd)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftsync/drift/internal/dashboard"
	"github.com/driftsync/drift/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show queue and sync status",
	Long: `Show the sync queue, todo counters and network state.

If the drift daemon is running, its live status (including last sync time
and error streak) is shown; otherwise the durable queue is reported
directly.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		// A running daemon knows more than the database does.
		if snapshot, ok := daemonSnapshot(); ok {
			printDaemonStatus(snapshot)
			return
		}

		a, err := openApp(ctx, nil)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		stats, err := a.queue.Stats(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		todoStats := a.service.Stats()

		a.probeOnce(ctx)
		state := a.monitor.State()

		fmt.Printf("%s drift status %s\n\n", ui.RenderAccent("⇅"), ui.RenderFaint("(daemon not running)"))
		fmt.Printf("  Todos:   %d total, %d open, %d done\n", todoStats.Total, todoStats.Pending, todoStats.Completed)
		printQueueLine(stats.Total, stats.Retrying)
		printNetworkLine(string(state.Quality), string(state.Transport), state.Connected)
	},
}

// daemonSnapshot asks the local dashboard for live state.
func daemonSnapshot() (dashboard.Snapshot, bool) {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get("http://" + cfg.Dashboard.Addr + "/status")
	if err != nil {
		return dashboard.Snapshot{}, false
	}
	defer resp.Body.Close()

	var snapshot dashboard.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return dashboard.Snapshot{}, false
	}
	return snapshot, true
}

func printDaemonStatus(s dashboard.Snapshot) {
	fmt.Printf("%s drift status %s\n\n", ui.RenderAccent("⇅"), ui.RenderFaint("(live)"))
	fmt.Printf("  Todos:   %d total, %d open, %d done\n", s.Todos.Total, s.Todos.Pending, s.Todos.Completed)
	printQueueLine(s.Queue.Total, s.Queue.Retrying)
	printNetworkLine(string(s.Network.Quality), string(s.Network.Transport), s.Network.Connected)

	if s.Sync.IsSyncing {
		fmt.Printf("  Sync:    %s\n", ui.RenderAccent("in progress"))
	} else if s.Sync.LastSyncTime != nil {
		fmt.Printf("  Sync:    last at %s\n", s.Sync.LastSyncTime.Local().Format("15:04:05"))
	} else {
		fmt.Printf("  Sync:    never\n")
	}
	if s.Sync.LastError != "" {
		fmt.Printf("  Errors:  %s %s\n", ui.RenderFail(s.Sync.LastError),
			ui.RenderFaint(fmt.Sprintf("(%d consecutive)", s.Sync.ConsecutiveErrors)))
	}
}

func printQueueLine(total, retrying int) {
	line := fmt.Sprintf("  Queue:   %d waiting", total)
	if retrying > 0 {
		line += " " + ui.RenderWarn(fmt.Sprintf("(%d retrying)", retrying))
	} else if total == 0 {
		line += " " + ui.RenderPass("✓")
	}
	fmt.Println(line)
}

func printNetworkLine(quality, transport string, connected bool) {
	label := quality
	if connected {
		label += " (" + transport + ")"
	}
	switch quality {
	case "offline":
		label = ui.RenderFail(label)
	case "poor":
		label = ui.RenderWarn(label)
	default:
		label = ui.RenderPass(label)
	}
	fmt.Printf("  Network: %s\n", label)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftsync/drift/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "todos",
	Short:   "List todos",
	Long: `List todos from the local optimistic view, oldest first.

Unsynced changes are marked with ~; overdue todos are highlighted.`,
	Run: func(cmd *cobra.Command, args []string) {
		showDone, _ := cmd.Flags().GetBool("done")
		showAll, _ := cmd.Flags().GetBool("all")

		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		entries := a.service.List()
		now := time.Now()
		shown := 0
		for _, entry := range entries {
			t := entry.Todo
			if !showAll && t.Completed != showDone {
				continue
			}
			shown++

			marker := ui.RenderFaint("·")
			if t.Completed {
				marker = ui.RenderPass("✓")
			} else if t.Overdue(now) {
				marker = ui.RenderFail("!")
			}

			sync := " "
			if !t.Synced {
				sync = ui.RenderWarn("~")
			}

			line := fmt.Sprintf("%s%s %s %s", sync, marker, ui.RenderFaint(shortID(t.ID)), t.Title)
			if t.DueAt != nil && !t.Completed {
				due := t.DueTime().Format("Jan 2 15:04")
				if t.Overdue(now) {
					line += " " + ui.RenderFail("(due "+due+")")
				} else {
					line += " " + ui.RenderFaint("(due "+due+")")
				}
			}
			fmt.Println(line)
		}

		if shown == 0 {
			fmt.Println(ui.RenderFaint("No todos. Add one with: drift add"))
			return
		}

		stats := a.service.Stats()
		fmt.Printf("\n%s\n", ui.RenderFaint(fmt.Sprintf("%d total · %d open · %d done · %d overdue",
			stats.Total, stats.Pending, stats.Completed, stats.Overdue)))
	},
}

// shortID trims an ID for display; full IDs still resolve everywhere.
func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

func init() {
	listCmd.Flags().Bool("done", false, "Show completed todos instead of open ones")
	listCmd.Flags().BoolP("all", "a", false, "Show everything")
	rootCmd.AddCommand(listCmd)
}

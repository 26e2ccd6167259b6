package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftsync/drift/internal/ui"
)

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	GroupID: "todos",
	Short:   "Delete a todo",
	Long: `Delete a todo. It disappears immediately; the remote delete is queued
and retried like any other change.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		id, err := a.resolveID(args[0])
		if err != nil {
			fatalf("%v", err)
		}

		entry, err := a.service.Get(id)
		if err != nil {
			fatalf("%v", err)
		}
		if err := a.service.Delete(ctx, id); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Deleted: %s\n", ui.RenderPass("✓"), entry.Title)
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

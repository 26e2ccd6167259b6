package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftsync/drift/internal/ui"
)

var doneCmd = &cobra.Command{
	Use:     "done <id>",
	GroupID: "todos",
	Short:   "Mark a todo completed",
	Args:    cobra.ExactArgs(1),
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

		completed, err := a.service.Complete(ctx, id)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Done: %s\n", ui.RenderPass("✓"), completed.Title)
	},
}

func init() {
	rootCmd.AddCommand(doneCmd)
}

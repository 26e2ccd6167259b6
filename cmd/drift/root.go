package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftsync/drift/internal/config"
)

var (
	cfgPath string
	cfg     *config.Config
	loader  *config.Loader
)

var rootCmd = &cobra.Command{
	Use:   "drift",
	Short: "Local-first todos that sync when the network lets them",
	Long: `drift keeps your todos in a local SQLite database and syncs them to a
remote API in the background. Every change is visible immediately and
queued durably; sync happens when connectivity allows, with automatic
retries and rollback of changes the server will never accept.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loader = config.NewLoader(cfgPath)
		var err error
		cfg, err = loader.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		return nil
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file")

	rootCmd.AddGroup(
		&cobra.Group{ID: "todos", Title: "Todo Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)
}

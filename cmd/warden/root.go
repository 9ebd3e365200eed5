package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden is a process-based worker-pool supervisor",
	Long: `Warden spawns a pool of child processes, runs a task repeatedly inside
each, persists per-worker results so state survives restarts, and respawns
any worker that exits before reporting completion.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

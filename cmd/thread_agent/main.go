// Package main provides the thread_agent CLI for the deal-thread engine.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "thread_agent",
	Short: "Causal-reasoning deal thread engine",
	Long:  "thread_agent drives business decisions through a fixed 7-stage reasoning pipeline, dispatches stage-5 actions from a declarative successor table, and folds outcomes back into a shared canvas of validated assumptions.",
}

var (
	rootDBPath   string
	rootSegments string
	rootConfig   string
	rootVerbose  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDBPath, "db", "dealthread.db", "SQLite database path (ignored when DATABASE_URL is set)")
	rootCmd.PersistentFlags().StringVar(&rootSegments, "segments", "segments.json", "Segment catalog JSON path")
	rootCmd.PersistentFlags().StringVar(&rootConfig, "config", "", "Optional JSON config file")
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/evanhsu/dealthread/internal/cli"
)

var statusThread string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a thread's state and action log",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusThread, "thread", "", "Thread ID (required)")
	if err := statusCmd.MarkFlagRequired("thread"); err != nil {
		panic(fmt.Sprintf("failed to mark thread flag as required: %v", err))
	}
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	threadID, err := uuid.Parse(statusThread)
	if err != nil {
		return fmt.Errorf("invalid thread ID: %w", err)
	}

	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	ctx := context.Background()
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	thread, err := rt.eng.Store.GetThread(ctx, threadID)
	if err != nil {
		return err
	}
	if thread == nil {
		return fmt.Errorf("thread not found: %s", threadID)
	}

	fmt.Print(cli.RenderThread(thread))

	actions, err := rt.eng.Store.ListActions(ctx, threadID)
	if err != nil {
		return err
	}
	if len(actions) > 0 {
		fmt.Println()
		fmt.Print(cli.RenderActions(actions))
	}
	return nil
}

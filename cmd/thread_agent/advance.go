package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/evanhsu/dealthread/internal/cli"
)

var (
	advanceThread  string
	advanceStage   int
	advancePayload string
)

var advanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Advance a thread to its next stage",
	Long:  "Move a thread one stage forward with the stage's payload document. Stages advance strictly in order; completed stage records are immutable.",
	RunE:  runAdvance,
}

func init() {
	advanceCmd.Flags().StringVar(&advanceThread, "thread", "", "Thread ID (required)")
	advanceCmd.Flags().IntVar(&advanceStage, "stage", 0, "Target stage 1-7 (required)")
	advanceCmd.Flags().StringVar(&advancePayload, "payload", "", "JSON file with the stage payload (required)")

	if err := advanceCmd.MarkFlagRequired("thread"); err != nil {
		panic(fmt.Sprintf("failed to mark thread flag as required: %v", err))
	}
	if err := advanceCmd.MarkFlagRequired("stage"); err != nil {
		panic(fmt.Sprintf("failed to mark stage flag as required: %v", err))
	}
	if err := advanceCmd.MarkFlagRequired("payload"); err != nil {
		panic(fmt.Sprintf("failed to mark payload flag as required: %v", err))
	}

	rootCmd.AddCommand(advanceCmd)
}

func runAdvance(_ *cobra.Command, _ []string) error {
	threadID, err := uuid.Parse(advanceThread)
	if err != nil {
		return fmt.Errorf("invalid thread ID: %w", err)
	}

	raw, err := os.ReadFile(advancePayload)
	if err != nil {
		return fmt.Errorf("failed to read payload file: %w", err)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("payload file %s is not valid JSON", advancePayload)
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

	thread, err := rt.eng.SM.Advance(ctx, threadID, advanceStage, json.RawMessage(raw))
	if err != nil {
		return err
	}

	fmt.Print(cli.RenderThread(thread))
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/evanhsu/dealthread/internal/cli"
	"github.com/evanhsu/dealthread/internal/schemas"
)

var (
	submitThread      string
	submitAction      string
	submitResult      string
	submitMetadataOut string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an action's result",
	Long:  "Resolve a thread's open action with a result and report what the successor table dispatches next. Replaying the same result is idempotent; a conflicting result is rejected for a human to adjudicate.",
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitThread, "thread", "", "Thread ID (required)")
	submitCmd.Flags().StringVar(&submitAction, "action", "", "Action ID (required)")
	submitCmd.Flags().StringVar(&submitResult, "result", "", "Result string (required)")
	submitCmd.Flags().StringVar(&submitMetadataOut, "metadata-out", "", "Write the resolved action's metadata document to this file")

	if err := submitCmd.MarkFlagRequired("thread"); err != nil {
		panic(fmt.Sprintf("failed to mark thread flag as required: %v", err))
	}
	if err := submitCmd.MarkFlagRequired("action"); err != nil {
		panic(fmt.Sprintf("failed to mark action flag as required: %v", err))
	}
	if err := submitCmd.MarkFlagRequired("result"); err != nil {
		panic(fmt.Sprintf("failed to mark result flag as required: %v", err))
	}

	rootCmd.AddCommand(submitCmd)
}

func runSubmit(_ *cobra.Command, _ []string) error {
	threadID, err := uuid.Parse(submitThread)
	if err != nil {
		return fmt.Errorf("invalid thread ID: %w", err)
	}
	actionID, err := uuid.Parse(submitAction)
	if err != nil {
		return fmt.Errorf("invalid action ID: %w", err)
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

	next, err := rt.eng.Dispatcher.SubmitResult(ctx, threadID, actionID, submitResult)
	if err != nil {
		return err
	}

	fmt.Print(cli.RenderNextStep(next))

	if submitMetadataOut != "" {
		if err := writeActionMetadata(ctx, rt, threadID, actionID); err != nil {
			return err
		}
	}
	return nil
}

// writeActionMetadata exports the resolved action's metadata document,
// checked against the compatibility schema before it leaves the process.
func writeActionMetadata(ctx context.Context, rt *runtime, threadID, actionID uuid.UUID) error {
	action, err := rt.eng.Store.GetAction(ctx, threadID, actionID)
	if err != nil {
		return err
	}
	if action == nil {
		return fmt.Errorf("action %s not found", actionID)
	}

	doc, err := json.MarshalIndent(action.Metadata(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal action metadata: %w", err)
	}
	if err := schemas.ValidateActionMetadata(doc); err != nil {
		return fmt.Errorf("action metadata failed contract validation: %w", err)
	}
	if err := os.WriteFile(submitMetadataOut, doc, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	fmt.Printf("metadata written to %s\n", submitMetadataOut)
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var reconcileThread string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Replay a thread's learning reconciliation",
	Long:  "Recompute the thread's canvas updates from its hypothesis and results records and re-apply them. The merge rule keys on (entry, thread), so a replay against an already-reconciled thread changes nothing.",
	RunE:  runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileThread, "thread", "", "Thread ID (required)")
	if err := reconcileCmd.MarkFlagRequired("thread"); err != nil {
		panic(fmt.Sprintf("failed to mark thread flag as required: %v", err))
	}
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(_ *cobra.Command, _ []string) error {
	threadID, err := uuid.Parse(reconcileThread)
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

	updates, err := rt.eng.Reconciler.Reconcile(ctx, threadID)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		fmt.Println("no hypotheses to reconcile")
		return nil
	}
	if err := rt.eng.Reconciler.Apply(ctx, updates); err != nil {
		return err
	}

	for _, u := range updates {
		fmt.Printf("%s %s (%+.2f)\n", u.EntryID, u.Verdict, u.ConfidenceDelta)
	}
	fmt.Printf("applied %d canvas updates\n", len(updates))
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evanhsu/dealthread/internal/cli"
	"github.com/evanhsu/dealthread/internal/types"
)

var canvasCmd = &cobra.Command{
	Use:   "canvas [entry-id]",
	Short: "List canvas entries or show one",
	Long:  "List the shared canvas of business assumptions with their validation status and confidence, or show a single entry by ID.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCanvas,
}

func init() {
	rootCmd.AddCommand(canvasCmd)
}

func runCanvas(_ *cobra.Command, args []string) error {
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

	if len(args) == 1 {
		entry, err := rt.eng.Canvas.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("canvas entry not found: %s", args[0])
		}
		fmt.Print(cli.RenderCanvas([]types.CanvasEntry{*entry}))
		for _, ref := range entry.EvidenceRefs {
			fmt.Printf("  evidence: %s\n", ref)
		}
		return nil
	}

	entries, err := rt.eng.Canvas.List(ctx)
	if err != nil {
		return err
	}
	fmt.Print(cli.RenderCanvas(entries))
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/evanhsu/dealthread/internal/cli"
	"github.com/evanhsu/dealthread/internal/matching"
	"github.com/evanhsu/dealthread/internal/observability"
	"github.com/evanhsu/dealthread/internal/types"
)

var (
	createKind    string
	createSource  string
	createSegment string
	createEntity  string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a new thread",
	Long:  "Create a thread and bind its segment, either from an explicit --segment or by scoring the entity attributes in --entity against the catalog. The binding is frozen at creation and never re-scored.",
	RunE:  runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createKind, "kind", "deal", "Thread kind (deal, campaign_response, other)")
	createCmd.Flags().StringVar(&createSource, "source", "", "Lead source label")
	createCmd.Flags().StringVar(&createSegment, "segment", "", "Bind to this segment ID instead of matching")
	createCmd.Flags().StringVar(&createEntity, "entity", "", "JSON file with entity attributes to match")
	rootCmd.AddCommand(createCmd)
}

func runCreate(_ *cobra.Command, _ []string) error {
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

	binding, err := resolveBinding(rt, os.Stderr)
	if err != nil {
		return err
	}

	thread, err := rt.eng.SM.CreateThread(ctx, types.ThreadKind(createKind), binding, createSource)
	if err != nil {
		return err
	}

	fmt.Print(cli.RenderThread(thread))
	return nil
}

func resolveBinding(rt *runtime, warn io.Writer) (*types.SegmentBinding, error) {
	if createSegment != "" {
		if rt.matcher == nil {
			return nil, fmt.Errorf("no segment catalog loaded")
		}
		seg, ok := rt.matcher.Lookup(createSegment)
		if !ok {
			return nil, fmt.Errorf("unknown segment %q", createSegment)
		}
		return &types.SegmentBinding{
			SegmentID:        seg.ID,
			MatchScore:       1.0,
			MaterialsVersion: seg.MaterialsVersion,
		}, nil
	}

	if createEntity == "" {
		return nil, nil
	}
	if rt.matcher == nil {
		return nil, fmt.Errorf("no segment catalog loaded")
	}

	data, err := os.ReadFile(createEntity)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity file: %w", err)
	}
	var entity map[string]any
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("failed to parse entity file: %w", err)
	}

	result, err := rt.matcher.Match(entity)
	var noMatch *matching.NoConfidentMatchError
	if errors.As(err, &noMatch) {
		// Degraded mode: the thread proceeds unbound.
		fmt.Fprintf(warn, "warning: %v; thread will be unbound\n", noMatch)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rootVerbose {
		observability.NewPrinter(os.Stderr).PrintMatch(result)
	}

	binding := &types.SegmentBinding{
		SegmentID:  result.SegmentID,
		MatchScore: result.Score,
	}
	if seg, ok := rt.matcher.Lookup(result.SegmentID); ok {
		binding.MaterialsVersion = seg.MaterialsVersion
	}
	return binding, nil
}

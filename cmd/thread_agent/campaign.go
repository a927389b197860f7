package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evanhsu/dealthread/internal/cli"
	"github.com/evanhsu/dealthread/internal/types"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Manage outbound campaigns",
}

var (
	campaignCreateName    string
	campaignCreateSegment string
)

var campaignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a campaign bound to a catalog segment",
	RunE:  runCampaignCreate,
}

var (
	campaignRespondID   string
	campaignRespondFile string
)

var campaignRespondCmd = &cobra.Command{
	Use:   "respond",
	Short: "Route a batch of campaign responses",
	Long:  "Read campaign responses from a JSON file and route them: interested responses each spawn a deal thread inheriting the campaign's segment, everything else only moves counters.",
	RunE:  runCampaignRespond,
}

var campaignStatsID string

var campaignStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a campaign's response counters",
	RunE:  runCampaignStats,
}

func init() {
	campaignCreateCmd.Flags().StringVar(&campaignCreateName, "name", "", "Campaign name (required)")
	campaignCreateCmd.Flags().StringVar(&campaignCreateSegment, "segment", "", "Segment ID from the catalog (required)")
	if err := campaignCreateCmd.MarkFlagRequired("name"); err != nil {
		panic(fmt.Sprintf("failed to mark name flag as required: %v", err))
	}
	if err := campaignCreateCmd.MarkFlagRequired("segment"); err != nil {
		panic(fmt.Sprintf("failed to mark segment flag as required: %v", err))
	}

	campaignRespondCmd.Flags().StringVar(&campaignRespondID, "campaign", "", "Campaign ID (required)")
	campaignRespondCmd.Flags().StringVar(&campaignRespondFile, "responses", "", "JSON file with an array of responses (required)")
	if err := campaignRespondCmd.MarkFlagRequired("campaign"); err != nil {
		panic(fmt.Sprintf("failed to mark campaign flag as required: %v", err))
	}
	if err := campaignRespondCmd.MarkFlagRequired("responses"); err != nil {
		panic(fmt.Sprintf("failed to mark responses flag as required: %v", err))
	}

	campaignStatsCmd.Flags().StringVar(&campaignStatsID, "campaign", "", "Campaign ID (required)")
	if err := campaignStatsCmd.MarkFlagRequired("campaign"); err != nil {
		panic(fmt.Sprintf("failed to mark campaign flag as required: %v", err))
	}

	campaignCmd.AddCommand(campaignCreateCmd, campaignRespondCmd, campaignStatsCmd)
	rootCmd.AddCommand(campaignCmd)
}

func campaignRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if rt.orch == nil {
		rt.close()
		return nil, fmt.Errorf("campaigns need a segment catalog (--segments)")
	}
	return rt, nil
}

func runCampaignCreate(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	rt, err := campaignRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	c, err := rt.orch.CreateCampaign(ctx, campaignCreateName, campaignCreateSegment)
	if err != nil {
		return err
	}

	fmt.Printf("campaign %s created (segment %s)\n", c.ID, c.Segment.SegmentID)
	return nil
}

func runCampaignRespond(_ *cobra.Command, _ []string) error {
	data, err := os.ReadFile(campaignRespondFile)
	if err != nil {
		return fmt.Errorf("failed to read responses file: %w", err)
	}
	var responses []types.CampaignResponse
	if err := json.Unmarshal(data, &responses); err != nil {
		return fmt.Errorf("failed to parse responses file: %w", err)
	}
	if len(responses) == 0 {
		return fmt.Errorf("responses file is empty")
	}

	ctx := context.Background()
	rt, err := campaignRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	threads, err := rt.orch.HandleResponses(ctx, campaignRespondID, responses)
	if err != nil {
		return err
	}

	fmt.Printf("routed %d responses, spawned %d threads\n", len(responses), len(threads))
	for _, thread := range threads {
		fmt.Printf("  %s\n", thread.ID)
	}
	fmt.Print(cli.RenderStats(campaignRespondID, rt.orch.CampaignStats(campaignRespondID)))
	return nil
}

func runCampaignStats(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	rt, err := campaignRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	fmt.Print(cli.RenderStats(campaignStatsID, rt.orch.CampaignStats(campaignStatsID)))
	return nil
}

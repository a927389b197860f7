package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/evanhsu/dealthread/internal/types"
)

// CreateCampaign inserts a campaign record
func (db *DB) CreateCampaign(ctx context.Context, campaign *types.Campaign) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO campaigns (id, name, segment_id, segment_score, materials_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		campaign.ID, campaign.Name, campaign.Segment.SegmentID, campaign.Segment.MatchScore,
		emptyToNil(campaign.Segment.MaterialsVersion), campaign.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetCampaign retrieves a campaign by ID, returning nil when absent
func (db *DB) GetCampaign(ctx context.Context, campaignID string) (*types.Campaign, error) {
	var c types.Campaign
	var matVer *string
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, segment_id, segment_score, materials_version, created_at
		 FROM campaigns WHERE id = $1`, campaignID,
	).Scan(&c.ID, &c.Name, &c.Segment.SegmentID, &c.Segment.MatchScore, &matVer, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	if matVer != nil {
		c.Segment.MaterialsVersion = *matVer
	}
	return &c, nil
}

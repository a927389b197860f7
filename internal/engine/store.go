package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/evanhsu/dealthread/internal/types"
)

// ThreadStore is the persistence collaborator for thread metadata, stage
// records and the action log. The engine only requires key-addressable
// load/save/list semantics; the backing medium is immaterial.
type ThreadStore interface {
	CreateThread(ctx context.Context, thread *types.Thread) error
	GetThread(ctx context.Context, threadID uuid.UUID) (*types.Thread, error)
	UpdateThread(ctx context.Context, thread *types.Thread) error
	ListThreads(ctx context.Context, filters types.ThreadFilters) ([]types.Thread, error)

	// SaveStageRecord persists an append-only stage record. Implementations
	// must not overwrite an existing (thread_id, stage) record.
	SaveStageRecord(ctx context.Context, rec *types.StageRecord) error
	GetStageRecord(ctx context.Context, threadID uuid.UUID, stage int) (*types.StageRecord, error)

	CreateAction(ctx context.Context, action *types.Action) error
	UpdateAction(ctx context.Context, action *types.Action) error
	GetAction(ctx context.Context, threadID, actionID uuid.UUID) (*types.Action, error)
	ListActions(ctx context.Context, threadID uuid.UUID) ([]types.Action, error)
}

// CanvasStore is the shared, versioned assumption store. Merge must be safe
// under concurrent calls from multiple reconciler invocations; it is the
// engine's only cross-thread serialization point.
type CanvasStore interface {
	Get(ctx context.Context, entryID string) (*types.CanvasEntry, error)
	List(ctx context.Context) ([]types.CanvasEntry, error)

	// Create inserts a brand-new entry and fails with EntryExistsError when
	// the ID is already taken.
	Create(ctx context.Context, entry *types.CanvasEntry) error

	// Merge applies an update under a compare-and-swap or transactional
	// read-modify-write keyed by entry ID. An update whose evidence thread
	// is already recorded on the entry is a no-op. A merge against a
	// missing entry creates it with an untested baseline first.
	Merge(ctx context.Context, update types.CanvasUpdate) (*types.CanvasEntry, error)
}

// CampaignStore persists campaign records for the orchestrator.
type CampaignStore interface {
	CreateCampaign(ctx context.Context, campaign *types.Campaign) error
	GetCampaign(ctx context.Context, campaignID string) (*types.Campaign, error)
}

package types

import "time"

// ResponseSentiment classifies an inbound campaign response.
type ResponseSentiment string

const (
	SentimentInterested  ResponseSentiment = "interested"
	SentimentNotNow      ResponseSentiment = "not_now"
	SentimentUnsubscribe ResponseSentiment = "unsubscribe"
)

// Campaign is an outbound effort bound to a single segment. Every thread it
// spawns inherits that segment verbatim; responses are never re-scored.
type Campaign struct {
	ID        string         `json:"campaign_id"`
	Name      string         `json:"name"`
	Segment   SegmentBinding `json:"segment"`
	CreatedAt time.Time      `json:"created_at"`
}

// CampaignResponse is one inbound reply routed through the orchestrator.
type CampaignResponse struct {
	Sentiment  ResponseSentiment `json:"sentiment" validate:"required,oneof=interested not_now unsubscribe"`
	Entity     map[string]any    `json:"entity,omitempty"`
	ContactRef string            `json:"contact_ref,omitempty"`
	Notes      string            `json:"notes,omitempty"`
}

// Validate validates the CampaignResponse using the validator.
func (r *CampaignResponse) Validate() error {
	return validate.Struct(r)
}

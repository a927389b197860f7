package schemas

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanhsu/dealthread/internal/types"
)

func TestValidateActionMetadata(t *testing.T) {
	now := time.Now().UTC()
	due := now.Add(48 * time.Hour)
	action := types.Action{
		ID:            uuid.New(),
		ThreadID:      uuid.New(),
		Type:          "qualification",
		Status:        types.ActionStatusPending,
		HumanRequired: true,
		Skill:         "discovery",
		CreatedAt:     now,
		Due:           &due,
	}

	doc, err := json.Marshal(action.Metadata())
	require.NoError(t, err)

	assert.NoError(t, ValidateActionMetadata(doc))
}

func TestValidateActionMetadataRejects(t *testing.T) {
	tests := []struct {
		name     string
		document string
		field    string
	}{
		{
			name:     "missing required fields",
			document: `{"type": "demo"}`,
			field:    "action_id",
		},
		{
			name: "unknown field",
			document: `{"action_id": "0b671e2c-47f5-4f9a-bd7e-9f26b03a88f1", "type": "demo",
			            "status": "pending", "human_required": false,
			            "created": "2024-06-01T12:00:00Z", "priority": "high"}`,
			field: "priority",
		},
		{
			name: "bad status value",
			document: `{"action_id": "0b671e2c-47f5-4f9a-bd7e-9f26b03a88f1", "type": "demo",
			            "status": "done", "human_required": false,
			            "created": "2024-06-01T12:00:00Z"}`,
			field: "status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateActionMetadata([]byte(tt.document))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Error(), tt.field)
		})
	}
}

func TestValidateActionMetadataInvalidJSON(t *testing.T) {
	err := ValidateActionMetadata([]byte(`{not json`))
	assert.Error(t, err)
}

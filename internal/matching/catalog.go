package matching

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/evanhsu/dealthread/internal/types"
)

// LoadCatalog reads the segment catalog from a JSON file. Declaration
// order in the file is the tie-break order for matching. Duplicate segment
// IDs are rejected.
func LoadCatalog(path string) ([]types.Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment catalog %s: %w", path, err)
	}
	var segments []types.Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("failed to parse segment catalog %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(segments))
	for i := range segments {
		if err := segments[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid segment %q in %s: %w", segments[i].ID, path, err)
		}
		if _, dup := seen[segments[i].ID]; dup {
			return nil, fmt.Errorf("duplicate segment id %q in %s", segments[i].ID, path)
		}
		seen[segments[i].ID] = struct{}{}
	}
	return segments, nil
}

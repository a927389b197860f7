package matching

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanhsu/dealthread/internal/types"
)

func catalog() []types.Segment {
	return []types.Segment{
		{
			ID:   "smb-saas",
			Name: "SMB SaaS",
			Predicates: []types.Predicate{
				{Attribute: "industry", Op: types.OpEquals, Value: "saas", Weight: 2},
				{Attribute: "employees", Op: types.OpLessOrEq, Value: 200.0},
			},
		},
		{
			ID:   "mid-market",
			Name: "Mid-market",
			Predicates: []types.Predicate{
				{Attribute: "employees", Op: types.OpGreaterOrEq, Value: 200.0},
				{Attribute: "employees", Op: types.OpLessOrEq, Value: 2000.0},
			},
		},
		{
			ID:   "enterprise",
			Name: "Enterprise",
			Predicates: []types.Predicate{
				{Attribute: "employees", Op: types.OpGreaterOrEq, Value: 2000.0},
				{Attribute: "security_review", Op: types.OpExists},
			},
		},
	}
}

func TestEvaluate(t *testing.T) {
	entity := map[string]any{
		"industry":  "saas",
		"employees": 150.0,
		"region":    "EMEA",
		"tags":      "startup, product-led",
	}

	tests := []struct {
		name      string
		predicate types.Predicate
		want      bool
	}{
		{"eq match", types.Predicate{Attribute: "industry", Op: types.OpEquals, Value: "saas"}, true},
		{"eq mismatch", types.Predicate{Attribute: "industry", Op: types.OpEquals, Value: "fintech"}, false},
		{"eq missing attribute", types.Predicate{Attribute: "vertical", Op: types.OpEquals, Value: "saas"}, false},
		{"eq numeric int vs float", types.Predicate{Attribute: "employees", Op: types.OpEquals, Value: 150}, true},
		{"ne mismatch", types.Predicate{Attribute: "industry", Op: types.OpNotEquals, Value: "fintech"}, true},
		{"ne missing attribute passes", types.Predicate{Attribute: "vertical", Op: types.OpNotEquals, Value: "saas"}, true},
		{"gte true", types.Predicate{Attribute: "employees", Op: types.OpGreaterOrEq, Value: 150.0}, true},
		{"gte false", types.Predicate{Attribute: "employees", Op: types.OpGreaterOrEq, Value: 151.0}, false},
		{"lte true", types.Predicate{Attribute: "employees", Op: types.OpLessOrEq, Value: 150.0}, true},
		{"lte non-numeric attribute", types.Predicate{Attribute: "region", Op: types.OpLessOrEq, Value: 10.0}, false},
		{"contains case-insensitive", types.Predicate{Attribute: "tags", Op: types.OpContains, Value: "Product-Led"}, true},
		{"contains miss", types.Predicate{Attribute: "tags", Op: types.OpContains, Value: "enterprise"}, false},
		{"exists present", types.Predicate{Attribute: "region", Op: types.OpExists}, true},
		{"exists absent", types.Predicate{Attribute: "security_review", Op: types.OpExists}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(entity, tt.predicate))
		})
	}
}

func TestScoreWeighted(t *testing.T) {
	segment := &types.Segment{
		ID: "s",
		Predicates: []types.Predicate{
			{Attribute: "industry", Op: types.OpEquals, Value: "saas", Weight: 3},
			{Attribute: "employees", Op: types.OpLessOrEq, Value: 100.0},
		},
	}

	// Industry hits, size misses: 3 of 4 weight.
	score := Score(map[string]any{"industry": "saas", "employees": 500.0}, segment)
	assert.InDelta(t, 0.75, score, 1e-9)

	// Both hit.
	score = Score(map[string]any{"industry": "saas", "employees": 50.0}, segment)
	assert.InDelta(t, 1.0, score, 1e-9)

	// Empty entity.
	score = Score(map[string]any{}, segment)
	assert.InDelta(t, 0.0, score, 1e-9)
}

func TestMatchDeterministic(t *testing.T) {
	m := NewMatcher(catalog(), 0.5, nil)
	entity := map[string]any{"industry": "saas", "employees": 120.0}

	first, err := m.Match(entity)
	require.NoError(t, err)
	for range 20 {
		again, err := m.Match(entity)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "smb-saas", first.SegmentID)
	assert.InDelta(t, 1.0, first.Score, 1e-9)
}

func TestMatchTieBreakDeclarationOrder(t *testing.T) {
	// employees=200 satisfies one of two predicates in both smb-saas and a
	// full match in mid-market; force an exact tie instead.
	segments := []types.Segment{
		{ID: "first", Name: "First", Predicates: []types.Predicate{
			{Attribute: "industry", Op: types.OpEquals, Value: "saas"},
		}},
		{ID: "second", Name: "Second", Predicates: []types.Predicate{
			{Attribute: "industry", Op: types.OpEquals, Value: "saas"},
		}},
	}
	m := NewMatcher(segments, 0.5, nil)

	result, err := m.Match(map[string]any{"industry": "saas"})
	require.NoError(t, err)
	assert.Equal(t, "first", result.SegmentID, "first-declared segment keeps a tie")
}

func TestMatchNoConfident(t *testing.T) {
	m := NewMatcher(catalog(), 0, nil)

	_, err := m.Match(map[string]any{"industry": "agriculture"})
	var noMatch *NoConfidentMatchError
	require.ErrorAs(t, err, &noMatch)
	assert.InDelta(t, DefaultThreshold, noMatch.Threshold, 1e-9)
	assert.Less(t, noMatch.BestScore, DefaultThreshold)
}

func TestMatchEmptyCatalog(t *testing.T) {
	m := NewMatcher(nil, 0.5, nil)

	_, err := m.Match(map[string]any{"industry": "saas"})
	var noMatch *NoConfidentMatchError
	require.ErrorAs(t, err, &noMatch)
	assert.Empty(t, noMatch.BestSegmentID)
}

func TestLookup(t *testing.T) {
	m := NewMatcher(catalog(), 0.5, nil)

	seg, ok := m.Lookup("mid-market")
	require.True(t, ok)
	assert.Equal(t, "Mid-market", seg.Name)

	_, ok = m.Lookup("nonexistent")
	assert.False(t, ok)
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segments.json")
	data := `[
		{"segment_id": "smb", "name": "SMB", "predicates": [
			{"attribute": "employees", "op": "lte", "value": 200, "weight": 2}
		], "materials_version": "2024-06"},
		{"segment_id": "ent", "name": "Enterprise", "predicates": [
			{"attribute": "employees", "op": "gte", "value": 2000}
		]}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	segments, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "smb", segments[0].ID)
	assert.Equal(t, "2024-06", segments[0].MaterialsVersion)
	assert.Equal(t, types.OpLessOrEq, segments[0].Predicates[0].Op)
}

func TestLoadCatalogRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		data string
	}{
		{"duplicate ids", `[
			{"segment_id": "a", "name": "A", "predicates": [{"attribute": "x", "op": "exists"}]},
			{"segment_id": "a", "name": "A2", "predicates": [{"attribute": "x", "op": "exists"}]}
		]`},
		{"unknown op", `[
			{"segment_id": "a", "name": "A", "predicates": [{"attribute": "x", "op": "regex", "value": ".*"}]}
		]`},
		{"missing name", `[
			{"segment_id": "a", "predicates": [{"attribute": "x", "op": "exists"}]}
		]`},
		{"not json", `{{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0o644))
			_, err := LoadCatalog(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

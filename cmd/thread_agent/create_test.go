package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanhsu/dealthread/internal/engine"
	"github.com/evanhsu/dealthread/internal/matching"
	"github.com/evanhsu/dealthread/internal/storage"
	"github.com/evanhsu/dealthread/internal/types"
)

func testRuntime(t *testing.T) (*runtime, *storage.MemStore) {
	t.Helper()
	store := storage.NewMemStore()
	segments := []types.Segment{
		{
			ID:               "smb-saas",
			Name:             "SMB SaaS",
			MaterialsVersion: "2025-q3",
			Predicates: []types.Predicate{
				{Attribute: "industry", Op: types.OpEquals, Value: "saas", Weight: 2},
				{Attribute: "employees", Op: types.OpLessOrEq, Value: 200.0},
			},
		},
	}
	return &runtime{
		eng:     engine.New(store, store, nil, nil),
		matcher: matching.NewMatcher(segments, matching.DefaultThreshold, nil),
		close:   func() {},
	}, store
}

func setCreateFlags(t *testing.T, segment, entity string) {
	t.Helper()
	prevSegment, prevEntity := createSegment, createEntity
	createSegment, createEntity = segment, entity
	t.Cleanup(func() {
		createSegment, createEntity = prevSegment, prevEntity
	})
}

func writeEntityFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entity.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveBindingDegradedMode(t *testing.T) {
	rt, _ := testRuntime(t)
	setCreateFlags(t, "", writeEntityFile(t, `{"industry":"agriculture","employees":5000}`))

	var warn strings.Builder
	binding, err := resolveBinding(rt, &warn)
	require.NoError(t, err)
	assert.Nil(t, binding, "no confident match leaves the thread unbound")
	assert.Contains(t, warn.String(), "thread will be unbound")

	// The unbound thread still proceeds through the lifecycle.
	ctx := context.Background()
	thread, err := rt.eng.SM.CreateThread(ctx, types.ThreadKind(createKind), binding, "")
	require.NoError(t, err)
	assert.Nil(t, thread.Segment)

	thread, err = rt.eng.SM.Advance(ctx, thread.ID, types.StageInput, &types.InputPayload{
		Source: "walk-in",
		Entity: map[string]any{"industry": "agriculture"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StageInput, thread.Stage)
}

func TestResolveBindingMatchedEntity(t *testing.T) {
	rt, _ := testRuntime(t)
	setCreateFlags(t, "", writeEntityFile(t, `{"industry":"saas","employees":40}`))

	var warn strings.Builder
	binding, err := resolveBinding(rt, &warn)
	require.NoError(t, err)
	require.NotNil(t, binding)
	assert.Equal(t, "smb-saas", binding.SegmentID)
	assert.InDelta(t, 1.0, binding.MatchScore, 1e-9)
	assert.Equal(t, "2025-q3", binding.MaterialsVersion)
	assert.Empty(t, warn.String())
}

func TestResolveBindingExplicitSegment(t *testing.T) {
	rt, _ := testRuntime(t)
	setCreateFlags(t, "smb-saas", "")

	var warn strings.Builder
	binding, err := resolveBinding(rt, &warn)
	require.NoError(t, err)
	require.NotNil(t, binding)
	assert.Equal(t, "smb-saas", binding.SegmentID)
	assert.InDelta(t, 1.0, binding.MatchScore, 1e-9)
	assert.Equal(t, "2025-q3", binding.MaterialsVersion)

	setCreateFlags(t, "mid-market", "")
	_, err = resolveBinding(rt, &warn)
	assert.Error(t, err, "unknown segment IDs are rejected")
}

func TestResolveBindingNoCatalog(t *testing.T) {
	rt, _ := testRuntime(t)
	rt.matcher = nil
	setCreateFlags(t, "", writeEntityFile(t, `{"industry":"saas"}`))

	var warn strings.Builder
	_, err := resolveBinding(rt, &warn)
	assert.Error(t, err)
}

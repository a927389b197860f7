package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evanhsu/dealthread/internal/campaign"
	"github.com/evanhsu/dealthread/internal/engine"
	"github.com/evanhsu/dealthread/internal/matching"
	"github.com/evanhsu/dealthread/internal/storage"
	"github.com/evanhsu/dealthread/internal/types"
)

func testSegments() []types.Segment {
	return []types.Segment{
		{
			ID:   "smb-saas",
			Name: "SMB SaaS",
			Predicates: []types.Predicate{
				{Attribute: "industry", Op: types.OpEquals, Value: "saas", Weight: 2},
				{Attribute: "employees", Op: types.OpLessOrEq, Value: 200.0, Weight: 1},
			},
			MaterialsVersion: "2024-06",
		},
		{
			ID:   "enterprise",
			Name: "Enterprise",
			Predicates: []types.Predicate{
				{Attribute: "employees", Op: types.OpGreaterOrEq, Value: 1000.0, Weight: 1},
			},
		},
	}
}

func newTestServer(t *testing.T, cfg Config, users UserStore) *Server {
	t.Helper()
	store := storage.NewMemStore()
	eng := engine.New(store, store, nil, zap.NewNop())
	matcher := matching.NewMatcher(testSegments(), matching.DefaultThreshold, zap.NewNop())
	orch := campaign.NewOrchestrator(eng, store, matcher, zap.NewNop())

	t.Setenv("RATE_LIMIT_ENABLED", "false")

	srv, err := New(cfg, Deps{
		Engine:       eng,
		Orchestrator: orch,
		Matcher:      matcher,
		Campaigns:    store,
		Users:        users,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Config{}, nil)
	rec := doJSON(t, srv.Handler(), "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestThreadLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, Config{}, nil)
	h := srv.Handler()

	// Create a thread; the attributes land in the SMB segment.
	rec := doJSON(t, h, "POST", "/threads", CreateThreadRequest{
		Kind:       types.KindDeal,
		LeadSource: "referral",
		Attributes: map[string]any{"industry": "saas", "employees": 50},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	thread := decodeBody[types.Thread](t, rec)
	require.NotNil(t, thread.Segment)
	assert.Equal(t, "smb-saas", thread.Segment.SegmentID)

	base := "/threads/" + thread.ID.String()

	// Stages 1 through 4.
	advance := func(stage int, payload any) *httptest.ResponseRecorder {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		return doJSON(t, h, "POST", base+"/advance", AdvanceRequest{Stage: stage, Payload: raw})
	}

	rec = advance(1, types.InputPayload{Source: "referral", Entity: map[string]any{"industry": "saas"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = advance(2, types.HypothesisPayload{Hypotheses: []types.Hypothesis{
		{ProposedTitle: "SMBs buy on price", Statement: "Price drives SMB decisions", Direction: types.DirectionPositive},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = advance(3, types.ImplicationPayload{ROI: 3.5, CostBreakdown: map[string]float64{"licences": 12000}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = advance(4, types.DecisionPayload{Verdict: types.VerdictPursue})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Out-of-order advance is rejected.
	rec = advance(7, types.LearningPayload{ResultsFinalized: true})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Stage 5 dispatches the first action.
	rec = advance(5, types.ActionsKickoffPayload{InitialAction: "qualification"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	thread = decodeBody[types.Thread](t, rec)
	require.NotNil(t, thread.CurrentActionID)

	// Walk the successor chain to a won close.
	for _, result := range []string{"qualified", "interested", "success", "won"} {
		rec = doJSON(t, h, "POST",
			fmt.Sprintf("%s/actions/%s/result", base, thread.CurrentActionID), SubmitResultRequest{Result: result})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		next := decodeBody[engine.NextStep](t, rec)
		if next.StageComplete {
			break
		}
		require.NotNil(t, next.NewAction)
		thread.CurrentActionID = &next.NewAction.ID
	}

	// The thread reconciled through to terminal learning.
	rec = doJSON(t, h, "GET", base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	final := decodeBody[types.Thread](t, rec)
	assert.Equal(t, types.StageLearning, final.Stage)
	assert.True(t, final.Terminal)
	require.Len(t, final.CanvasRefs, 1)

	// The proposed canvas entry was created and validated.
	rec = doJSON(t, h, "GET", "/canvas/"+final.CanvasRefs[0], nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entry := decodeBody[types.CanvasEntry](t, rec)
	assert.Equal(t, types.CanvasStatusValidated, entry.Status)
	assert.InDelta(t, 0.60, entry.Confidence, 1e-9)

	// Action metadata trail is visible.
	rec = doJSON(t, h, "GET", base+"/actions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "qualification")
	assert.Contains(t, rec.Body.String(), "close")
}

func TestCreateThreadNoConfidentMatch(t *testing.T) {
	srv := newTestServer(t, Config{}, nil)

	rec := doJSON(t, srv.Handler(), "POST", "/threads", CreateThreadRequest{
		Attributes: map[string]any{"industry": "agriculture", "employees": 500},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAbandonThread(t *testing.T) {
	srv := newTestServer(t, Config{}, nil)
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/threads", CreateThreadRequest{SegmentID: "smb-saas"})
	require.Equal(t, http.StatusCreated, rec.Code)
	thread := decodeBody[types.Thread](t, rec)
	assert.InDelta(t, 1.0, thread.Segment.MatchScore, 1e-9)

	rec = doJSON(t, h, "POST", "/threads/"+thread.ID.String()+"/abandon",
		AbandonRequest{Reason: "lead went dark"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	final := decodeBody[types.Thread](t, rec)
	assert.True(t, final.Terminal)
	assert.Equal(t, types.StageLearning, final.Stage)
}

func TestGetThreadNotFound(t *testing.T) {
	srv := newTestServer(t, Config{}, nil)

	rec := doJSON(t, srv.Handler(), "GET", "/threads/5f0c3e9a-9b7d-4f3a-8a5e-1c2d3e4f5a6b", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv.Handler(), "GET", "/threads/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCampaignFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t, Config{}, nil)
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/campaigns", CreateCampaignRequest{
		Name:      "Q3 SMB outreach",
		SegmentID: "smb-saas",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decodeBody[types.Campaign](t, rec)
	require.NotEmpty(t, c.ID)

	rec = doJSON(t, h, "POST", "/campaigns/"+c.ID+"/responses", CampaignResponsesRequest{
		Responses: []types.CampaignResponse{
			{Sentiment: types.SentimentInterested, Entity: map[string]any{"name": "Acme"}},
			{Sentiment: types.SentimentNotNow},
			{Sentiment: types.SentimentInterested, Entity: map[string]any{"name": "Globex"}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 2, body["count"], "only interested responses spawn threads")

	rec = doJSON(t, h, "GET", "/campaigns/"+c.ID+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[campaign.Stats](t, rec)
	assert.Equal(t, 2, stats.Interested)
	assert.Equal(t, 1, stats.NotNow)

	rec = doJSON(t, h, "GET", "/campaigns/"+c.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListSegments(t *testing.T) {
	srv := newTestServer(t, Config{}, nil)

	rec := doJSON(t, srv.Handler(), "GET", "/segments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 2, body["count"])
}

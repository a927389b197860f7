package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/evanhsu/dealthread/internal/types"
)

var requestValidator = validator.New()

// CreateThreadRequest starts a new thread. Segment binding is resolved from
// an explicit segment_id or by scoring the supplied attributes; with
// neither, the thread starts unbound.
type CreateThreadRequest struct {
	Kind       types.ThreadKind `json:"kind" validate:"omitempty,oneof=deal campaign_response other"`
	LeadSource string           `json:"lead_source,omitempty"`
	SegmentID  string           `json:"segment_id,omitempty"`
	Attributes map[string]any   `json:"attributes,omitempty"`
}

// AdvanceRequest moves a thread one stage forward.
type AdvanceRequest struct {
	Stage   int             `json:"stage" validate:"required,min=1,max=7"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// SubmitResultRequest records an action's result.
type SubmitResultRequest struct {
	Result string `json:"result" validate:"required"`
}

// AbandonRequest terminates a thread early.
type AbandonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CreateCampaignRequest starts a campaign bound to a catalog segment.
type CreateCampaignRequest struct {
	Name      string `json:"name" validate:"required"`
	SegmentID string `json:"segment_id" validate:"required"`
}

// CampaignResponsesRequest carries a batch of inbound campaign replies.
type CampaignResponsesRequest struct {
	Responses []types.CampaignResponse `json:"responses" validate:"required,min=1"`
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := requestValidator.Struct(dst); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return false
	}
	return true
}

func (s *Server) threadID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid thread id")
		return uuid.Nil, false
	}
	return id, true
}

// resolveSegment turns a creation request into a frozen segment binding.
func (s *Server) resolveSegment(req *CreateThreadRequest) (*types.SegmentBinding, error) {
	if s.matcher == nil || (req.SegmentID == "" && len(req.Attributes) == 0) {
		return nil, nil
	}

	if req.SegmentID != "" {
		seg, ok := s.matcher.Lookup(req.SegmentID)
		if !ok {
			return nil, &ErrValidation{Field: "segment_id", Message: "unknown segment"}
		}
		return &types.SegmentBinding{
			SegmentID:        seg.ID,
			MatchScore:       1.0,
			MaterialsVersion: seg.MaterialsVersion,
		}, nil
	}

	result, err := s.matcher.Match(req.Attributes)
	if err != nil {
		return nil, err
	}
	binding := &types.SegmentBinding{
		SegmentID:  result.SegmentID,
		MatchScore: result.Score,
	}
	if seg, ok := s.matcher.Lookup(result.SegmentID); ok {
		binding.MaterialsVersion = seg.MaterialsVersion
	}
	return binding, nil
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	req := CreateThreadRequest{Kind: types.KindDeal}
	if !s.decodeRequest(w, r, &req) {
		return
	}

	segment, err := s.resolveSegment(&req)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	thread, err := s.eng.SM.CreateThread(r.Context(), req.Kind, segment, req.LeadSource)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusCreated, thread)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := types.ThreadFilters{
		Kind:       types.ThreadKind(q.Get("kind")),
		SegmentID:  q.Get("segment_id"),
		LeadSource: q.Get("lead_source"),
	}
	if stage := q.Get("stage"); stage != "" {
		n, err := strconv.Atoi(stage)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid stage filter")
			return
		}
		filters.Stage = n
	}
	if archived := q.Get("archived"); archived != "" {
		b, err := strconv.ParseBool(archived)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid archived filter")
			return
		}
		filters.Archived = &b
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			s.errorResponse(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filters.Limit = n
	}

	threads, err := s.eng.Store.ListThreads(r.Context(), filters)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"threads": threads,
		"count":   len(threads),
	})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id, ok := s.threadID(w, r)
	if !ok {
		return
	}

	thread, err := s.eng.Store.GetThread(r.Context(), id)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if thread == nil {
		s.errorResponse(w, http.StatusNotFound, "thread not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, thread)
}

func (s *Server) handleListThreadActions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.threadID(w, r)
	if !ok {
		return
	}

	actions, err := s.eng.Store.ListActions(r.Context(), id)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	metadata := make([]types.ActionMetadata, 0, len(actions))
	for i := range actions {
		metadata = append(metadata, actions[i].Metadata())
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"actions": metadata,
		"count":   len(metadata),
	})
}

func (s *Server) handleGetStageRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := s.threadID(w, r)
	if !ok {
		return
	}
	stage, err := strconv.Atoi(r.PathValue("stage"))
	if err != nil || stage < types.StageInput || stage > types.StageLearning {
		s.errorResponse(w, http.StatusBadRequest, "invalid stage")
		return
	}

	rec, err := s.eng.Store.GetStageRecord(r.Context(), id, stage)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if rec == nil {
		s.errorResponse(w, http.StatusNotFound, "stage record not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, rec)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.threadID(w, r)
	if !ok {
		return
	}
	var req AdvanceRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	thread, err := s.eng.SM.Advance(r.Context(), id, req.Stage, req.Payload)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, thread)
}

func (s *Server) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	id, ok := s.threadID(w, r)
	if !ok {
		return
	}
	actionID, err := uuid.Parse(r.PathValue("action_id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid action id")
		return
	}
	var req SubmitResultRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	next, err := s.eng.Dispatcher.SubmitResult(r.Context(), id, actionID, req.Result)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, next)
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	id, ok := s.threadID(w, r)
	if !ok {
		return
	}
	var req AbandonRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	thread, err := s.eng.SM.Abandon(r.Context(), id, req.Reason)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, thread)
}

func (s *Server) handleListCanvas(w http.ResponseWriter, r *http.Request) {
	entries, err := s.eng.Canvas.List(r.Context())
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleGetCanvasEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.eng.Canvas.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if entry == nil {
		s.errorResponse(w, http.StatusNotFound, "canvas entry not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, entry)
}

func (s *Server) handleListSegments(w http.ResponseWriter, _ *http.Request) {
	if s.matcher == nil {
		s.jsonResponse(w, http.StatusOK, map[string]any{"segments": []types.Segment{}, "count": 0})
		return
	}
	segments := s.matcher.Segments()
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"segments": segments,
		"count":    len(segments),
	})
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	if s.orch == nil {
		s.errorResponse(w, http.StatusNotImplemented, "campaigns are not configured")
		return
	}
	var req CreateCampaignRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	c, err := s.orch.CreateCampaign(r.Context(), req.Name, req.SegmentID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusCreated, c)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	if s.campaigns == nil {
		s.errorResponse(w, http.StatusNotImplemented, "campaigns are not configured")
		return
	}

	c, err := s.campaigns.GetCampaign(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if c == nil {
		s.errorResponse(w, http.StatusNotFound, "campaign not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, c)
}

func (s *Server) handleCampaignStats(w http.ResponseWriter, r *http.Request) {
	if s.orch == nil {
		s.errorResponse(w, http.StatusNotImplemented, "campaigns are not configured")
		return
	}

	s.jsonResponse(w, http.StatusOK, s.orch.CampaignStats(r.PathValue("id")))
}

func (s *Server) handleCampaignResponses(w http.ResponseWriter, r *http.Request) {
	if s.orch == nil {
		s.errorResponse(w, http.StatusNotImplemented, "campaigns are not configured")
		return
	}
	var req CampaignResponsesRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	threads, err := s.orch.HandleResponses(r.Context(), r.PathValue("id"), req.Responses)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"threads": threads,
		"count":   len(threads),
	})
}

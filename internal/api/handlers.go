// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tomtom215/attune/internal/compat"
	"github.com/tomtom215/attune/internal/engine"
	"github.com/tomtom215/attune/internal/ledger"
)

// Handler serves the personalization API.
type Handler struct {
	engine   *engine.Engine
	validate *validator.Validate
	started  time.Time
}

// NewHandler creates the API handler around the engine facade.
func NewHandler(e *engine.Engine) *Handler {
	return &Handler{
		engine:   e,
		validate: validator.New(),
		started:  time.Now(),
	}
}

// payloadBody is the wire form of an interaction payload: a kind
// discriminator plus variant data.
type payloadBody struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type trackInteractionRequest struct {
	UserID  string          `json:"user_id" validate:"required,max=128"`
	Type    string          `json:"type" validate:"required,max=64"`
	Payload *payloadBody    `json:"payload,omitempty"`
	Context *ledger.Context `json:"context,omitempty"`
}

// TrackInteraction records one interaction.
// POST /api/v1/interactions
func (h *Handler) TrackInteraction(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)

	var req trackInteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		rw.ValidationError("invalid interaction", err.Error())
		return
	}

	var payload ledger.Payload
	if req.Payload != nil && req.Payload.Kind != "" {
		p, err := ledger.DecodePayload(req.Payload.Kind, req.Payload.Data)
		if err != nil {
			rw.BadRequest("invalid payload: " + err.Error())
			return
		}
		// DecodePayload is lenient about unknown kinds so persisted records
		// survive schema drift; the write path is not.
		if p == nil {
			rw.BadRequest("unknown payload kind: " + req.Payload.Kind)
			return
		}
		payload = p
	}

	var snapshot ledger.Context
	if req.Context != nil {
		snapshot = *req.Context
	}

	rec := h.engine.TrackInteraction(req.UserID, ledger.Type(req.Type), payload, snapshot)
	rw.Created(rec)
}

// Recommendations returns the adapted list for a user's current context.
// GET /api/v1/users/{userID}/recommendations
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("missing user id")
		return
	}

	current := contextFromQuery(r)
	items := h.engine.GetRecommendations(r.Context(), userID, current)
	rw.Success(items)
}

// Matches returns tiered peer matches.
// GET /api/v1/users/{userID}/matches
func (h *Handler) Matches(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("missing user id")
		return
	}

	opts := engine.MatchOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 100 {
			rw.BadRequest("limit must be an integer in [1,100]")
			return
		}
		opts.Limit = limit
	}

	rw.Success(h.engine.GetPeerMatches(r.Context(), userID, opts))
}

// Analytics returns the user's performance overview and category analysis.
// GET /api/v1/users/{userID}/analytics
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("missing user id")
		return
	}

	rw.Success(h.engine.AnalyticsSummary(userID))
}

type profileRequest struct {
	Interests          []string `json:"interests" validate:"max=64,dive,max=64"`
	Experiences        []string `json:"experiences" validate:"max=64,dive,max=64"`
	AgeMin             int      `json:"age_min" validate:"min=0,max=150"`
	AgeMax             int      `json:"age_max" validate:"min=0,max=150,gtefield=AgeMin"`
	CommunicationStyle string   `json:"communication_style" validate:"max=64"`
}

// SaveProfile stores the user's matching profile for peer compatibility.
// PUT /api/v1/users/{userID}/profile
func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("missing user id")
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		rw.ValidationError("invalid profile", err.Error())
		return
	}

	profile := compat.Profile{
		UserID:             userID,
		Interests:          req.Interests,
		Experiences:        req.Experiences,
		AgeRange:           compat.AgeRange{Min: req.AgeMin, Max: req.AgeMax},
		CommunicationStyle: req.CommunicationStyle,
	}
	if err := h.engine.SaveProfile(r.Context(), profile); err != nil {
		rw.ServiceUnavailable("profile store unavailable")
		return
	}
	rw.Success(profile)
}

type refreshResponse struct {
	Refreshed bool        `json:"refreshed"`
	Results   interface{} `json:"results,omitempty"`
}

// Refresh triggers a refresh pass for the user.
// POST /api/v1/users/{userID}/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("missing user id")
		return
	}

	force := r.URL.Query().Get("force") == "true"
	current := contextFromQuery(r)

	results := h.engine.Refresh(r.Context(), userID, current, force)
	if results == nil {
		// Another pass is in flight or the minimum interval has not elapsed.
		rw.Accepted(refreshResponse{Refreshed: false})
		return
	}
	rw.Success(refreshResponse{Refreshed: true, Results: results})
}

// StopRefresh tears down the user's refresh session.
// DELETE /api/v1/users/{userID}/refresh
func (h *Handler) StopRefresh(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("missing user id")
		return
	}

	h.engine.StopRefresh(userID)
	rw.NoContent()
}

// Health reports liveness plus basic runtime detail.
// GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r)
	rw.Success(map[string]interface{}{
		"status":          "ok",
		"uptime_seconds":  int64(time.Since(h.started).Seconds()),
		"active_sessions": h.engine.Scheduler().ActiveSessions(),
	})
}

// HealthLive is the bare liveness probe.
// GET /api/v1/health/live
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// contextFromQuery builds an optional interaction context from query
// parameters. Absent parameters leave the zero value, which the engine
// fills from the wall clock.
func contextFromQuery(r *http.Request) ledger.Context {
	q := r.URL.Query()
	out := ledger.Context{}

	if v := q.Get("time_of_day"); v != "" {
		out.TimeOfDay = ledger.TimeOfDay(v)
	}
	if v := q.Get("day_of_week"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 6 {
			out.DayOfWeek = n
		}
	}
	if v := q.Get("mood"); v != "" {
		out.Mood = ledger.Mood{Emotion: v, Confidence: 1}
	}
	if v := q.Get("stress_level"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 10 {
			out.StressLevel = n
		}
	}
	if v := q.Get("anxiety_level"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 10 {
			out.AnxietyLevel = n
		}
	}
	return out
}

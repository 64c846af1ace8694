// Package api exposes HTTP handlers for the recommendation service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"example.com/recommender/internal/auth"
	"example.com/recommender/internal/domain"
	"example.com/recommender/internal/observability"
	"example.com/recommender/internal/recommend"
)

// Recommender produces ranked recommendations.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*recommend.Response, error)
}

// EventStore persists client-reported outcome events.
type EventStore interface {
	AppendEvents(ctx context.Context, events []domain.Event) error
}

// ModelReloader swaps in the newest trained model artifact.
type ModelReloader interface {
	Reload(ctx context.Context) (bool, int)
}

// Defaults supplies per-deployment request defaults.
type Defaults struct {
	RadiusKm float64
	Horizon  time.Duration
	Limit    int
}

// Handler coordinates HTTP requests with the recommendation engine.
type Handler struct {
	engine   Recommender
	events   EventStore
	reloader ModelReloader
	defaults Defaults
}

// NewHandler builds a Handler.
func NewHandler(engine Recommender, events EventStore, reloader ModelReloader, defaults Defaults) *Handler {
	if defaults.RadiusKm <= 0 {
		defaults.RadiusKm = 10
	}
	if defaults.Horizon <= 0 {
		defaults.Horizon = 3 * time.Hour
	}
	if defaults.Limit <= 0 {
		defaults.Limit = recommend.DefaultLimit
	}
	return &Handler{engine: engine, events: events, reloader: reloader, defaults: defaults}
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/recommendations", h.recommendations)
	r.Post("/v1/events", h.postEvent)
	r.Post("/v1/model/reload", h.reloadModel)
	r.Get("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) recommendations(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeRecommendationsRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope recommendations:read required")
		return
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "token subject is not a user id")
		return
	}

	query := r.URL.Query()
	lat, err := parseFloat(query.Get("lat"))
	if err != nil || lat < -90 || lat > 90 {
		writeError(w, http.StatusBadRequest, "validation_failed", "lat must be a number in [-90, 90]")
		return
	}
	lon, err := parseFloat(query.Get("lon"))
	if err != nil || lon < -180 || lon > 180 {
		writeError(w, http.StatusBadRequest, "validation_failed", "lon must be a number in [-180, 180]")
		return
	}

	radiusKm := h.defaults.RadiusKm
	if raw := query.Get("radius_km"); raw != "" {
		parsed, err := parseFloat(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "radius_km must be > 0")
			return
		}
		radiusKm = parsed
	}

	horizon := h.defaults.Horizon
	if raw := query.Get("horizon_hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "horizon_hours must be > 0")
			return
		}
		horizon = time.Duration(parsed) * time.Hour
	}

	limit := h.defaults.Limit
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be > 0")
			return
		}
		limit = parsed
	}

	resp, err := h.engine.Recommend(r.Context(), recommend.Request{
		UserID:   userID,
		Lat:      lat,
		Lon:      lon,
		RadiusKm: radiusKm,
		Horizon:  horizon,
		Limit:    limit,
	})
	if err != nil {
		if errors.Is(err, recommend.ErrWeatherUnavailable) {
			writeError(w, http.StatusBadGateway, "upstream_unavailable", "weather provider unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]RecommendationView, 0, len(resp.Items))
	for i, item := range resp.Items {
		items = append(items, toRecommendationView(item, i+1))
	}
	writeJSON(w, http.StatusOK, RecommendationsResponse{
		RequestID: resp.RequestID.String(),
		Items:     items,
	})
}

func (h *Handler) postEvent(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeEventsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope events:write required")
		return
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "token subject is not a user id")
		return
	}

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	activityID, _ := uuid.Parse(req.ActivityID)
	event := domain.Event{
		ID:         uuid.New(),
		UserID:     userID,
		ActivityID: activityID,
		Kind:       domain.EventKind(req.EventType),
		OccurredAt: req.occurredAt(),
	}
	if req.RequestID != "" {
		// Attribution is soft: an unknown or stale request id still gets
		// recorded against the event, never rejected.
		if rid, err := uuid.Parse(req.RequestID); err == nil {
			event.RequestID = &rid
		}
	}
	if req.Position >= 1 {
		pos := req.Position
		event.Position = &pos
	}

	if err := h.events.AppendEvents(r.Context(), []domain.Event{event}); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	observability.RecordOutcome(req.EventType)

	writeJSON(w, http.StatusAccepted, EventResponse{EventID: event.ID.String()})
}

func (h *Handler) reloadModel(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeModelsAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "scope models:admin required")
		return
	}

	loaded, version := h.reloader.Reload(r.Context())
	writeJSON(w, http.StatusOK, ModelReloadResponse{
		ModelLoaded: loaded,
		Version:     version,
	})
}

// RecommendationView is one entry in a ranked response.
type RecommendationView struct {
	ActivityID string   `json:"activity_id"`
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	DistanceKm float64  `json:"distance_km"`
	Score      float64  `json:"score"`
	Position   int      `json:"position"`
	Reason     string   `json:"reason"`
}

// RecommendationsResponse packages a ranked list with its request id.
type RecommendationsResponse struct {
	RequestID string               `json:"request_id"`
	Items     []RecommendationView `json:"items"`
}

// EventRequest is the payload for POST /v1/events.
type EventRequest struct {
	ActivityID string `json:"activity_id"`
	EventType  string `json:"event_type"`
	RequestID  string `json:"request_id,omitempty"`
	Position   int    `json:"position,omitempty"`
	OccurredAt string `json:"occurred_at,omitempty"`
}

// Validate ensures request correctness. Impressions are produced server-side
// at serve time, so "view" is not accepted from clients.
func (r EventRequest) Validate() error {
	if _, err := uuid.Parse(strings.TrimSpace(r.ActivityID)); err != nil {
		return errors.New("activity_id must be a valid uuid")
	}
	kind := domain.EventKind(r.EventType)
	if !kind.Valid() {
		return errors.New("event_type must be one of click, save, complete, dismiss")
	}
	if kind == domain.EventView {
		return errors.New("view events are recorded server-side")
	}
	if r.OccurredAt != "" {
		if _, err := time.Parse(time.RFC3339, r.OccurredAt); err != nil {
			return errors.New("occurred_at must be RFC 3339")
		}
	}
	return nil
}

func (r EventRequest) occurredAt() time.Time {
	if r.OccurredAt != "" {
		if ts, err := time.Parse(time.RFC3339, r.OccurredAt); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}

// EventResponse acknowledges a stored outcome event.
type EventResponse struct {
	EventID string `json:"event_id"`
}

// ModelReloadResponse reports the lifecycle state after a reload attempt.
type ModelReloadResponse struct {
	ModelLoaded bool `json:"model_loaded"`
	Version     int  `json:"version"`
}

func toRecommendationView(item recommend.Item, position int) RecommendationView {
	tags := item.Activity.Tags
	if tags == nil {
		tags = []string{}
	}
	return RecommendationView{
		ActivityID: item.Activity.ID,
		Name:       item.Activity.Name,
		Category:   item.Activity.Category,
		Tags:       tags,
		DistanceKm: item.DistanceKm,
		Score:      item.Score,
		Position:   position,
		Reason:     item.Reason,
	}
}

func parseFloat(raw string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

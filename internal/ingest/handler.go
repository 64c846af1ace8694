package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/recommender/internal/domain"
	"example.com/recommender/internal/observability"
)

// EventStore persists decoded outcome events.
type EventStore interface {
	AppendEvents(ctx context.Context, events []domain.Event) error
}

// FeedbackHandler converts feedback payloads into domain events and stores them.
type FeedbackHandler struct {
	store EventStore
	now   func() time.Time
}

// NewFeedbackHandler constructs a handler backed by the provided store.
func NewFeedbackHandler(store EventStore) *FeedbackHandler {
	return &FeedbackHandler{store: store, now: time.Now}
}

type feedbackPayload struct {
	UserID     string  `json:"user_id"`
	ActivityID string  `json:"activity_id"`
	RequestID  *string `json:"request_id,omitempty"`
	Position   *int    `json:"position,omitempty"`
	OccurredAt *string `json:"occurred_at,omitempty"`
}

// Handle validates the payload and appends a single outcome event.
// Impressions are produced server-side at serve time and are rejected here.
func (h *FeedbackHandler) Handle(ctx context.Context, msg Message) error {
	kind := domain.EventKind(msg.EventType)
	if !kind.Valid() || !kind.Outcome() {
		return fmt.Errorf("unsupported event_type %q", msg.EventType)
	}

	var payload feedbackPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal feedback payload: %w", err)
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return fmt.Errorf("invalid user_id: %w", err)
	}
	activityID, err := uuid.Parse(payload.ActivityID)
	if err != nil {
		return fmt.Errorf("invalid activity_id: %w", err)
	}

	event := domain.Event{
		ID:         uuid.New(),
		UserID:     userID,
		ActivityID: activityID,
		Kind:       kind,
		OccurredAt: h.occurredAt(payload, msg),
	}
	if payload.RequestID != nil {
		// Attribution is soft: an unparseable request id drops the link,
		// never the event.
		if rid, err := uuid.Parse(*payload.RequestID); err == nil {
			event.RequestID = &rid
		}
	}
	if payload.Position != nil && *payload.Position >= 1 {
		pos := *payload.Position
		event.Position = &pos
	}

	if err := h.store.AppendEvents(ctx, []domain.Event{event}); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	observability.RecordOutcome(string(kind))
	return nil
}

func (h *FeedbackHandler) occurredAt(payload feedbackPayload, msg Message) time.Time {
	if payload.OccurredAt != nil {
		if ts, err := time.Parse(time.RFC3339, *payload.OccurredAt); err == nil {
			return ts.UTC()
		}
	}
	if !msg.Timestamp.IsZero() {
		return msg.Timestamp.UTC()
	}
	return h.now().UTC()
}

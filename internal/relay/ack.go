package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tmxfleet/alert-relay/internal/models"
	"github.com/tmxfleet/alert-relay/internal/repository"
)

// ViewState is the bounded in-memory list a connected client's alert
// page is kept in sync with: realtime inserts merge in at the front,
// acknowledgments flip in place.
type ViewState struct {
	mu     sync.Mutex
	events []*models.AlertEvent
	limit  int
}

func NewViewState(limit int) *ViewState {
	if limit < 1 {
		limit = 1
	}
	return &ViewState{limit: limit}
}

// MergeInsert prepends ev, dropping any older copy with the same id and
// trimming to the view limit.
func (v *ViewState) MergeInsert(ev *models.AlertEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()

	merged := make([]*models.AlertEvent, 0, len(v.events)+1)
	merged = append(merged, ev)
	for _, existing := range v.events {
		if existing.ID != ev.ID {
			merged = append(merged, existing)
		}
	}
	if len(merged) > v.limit {
		merged = merged[:v.limit]
	}
	v.events = merged
}

func (v *ViewState) setAcknowledged(id string, acked bool, at *time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, ev := range v.events {
		if ev.ID == id {
			ev.Acknowledged = acked
			ev.AcknowledgedAt = at
			return true
		}
	}
	return false
}

// Unacknowledged returns the events still awaiting acknowledgment,
// newest first.
func (v *ViewState) Unacknowledged() []models.AlertEvent {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.AlertEvent, 0, len(v.events))
	for _, ev := range v.events {
		if !ev.Acknowledged {
			out = append(out, *ev)
		}
	}
	return out
}

func (v *ViewState) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.events)
}

// AckWriter persists acknowledgment state and keeps the local view in
// step. It is driven by explicit user action, never by the feed.
type AckWriter struct {
	repo repository.EventRepository
	view *ViewState
}

func NewAckWriter(repo repository.EventRepository, view *ViewState) *AckWriter {
	return &AckWriter{repo: repo, view: view}
}

// Acknowledge optimistically marks the event acknowledged in the local
// view, then persists. On a failed write the optimistic update is
// rolled back and the error returned, so the caller can surface it;
// this is the one user-initiated synchronous action in the core and its
// failure must never be silently swallowed.
func (w *AckWriter) Acknowledge(ctx context.Context, id string) error {
	now := time.Now().UTC()
	updated := false
	if w.view != nil {
		updated = w.view.setAcknowledged(id, true, &now)
	}

	if err := w.repo.MarkAcknowledged(ctx, id, now); err != nil {
		if updated {
			w.view.setAcknowledged(id, false, nil)
		}
		return fmt.Errorf("acknowledging event %s: %w", id, err)
	}
	return nil
}

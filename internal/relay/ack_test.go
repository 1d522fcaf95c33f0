package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tmxfleet/alert-relay/internal/models"
	"github.com/tmxfleet/alert-relay/internal/repository"
)

type fakeAckRepo struct {
	acked map[string]time.Time
	err   error
}

func (f *fakeAckRepo) Insert(ctx context.Context, ev *models.AlertEvent) error { return nil }
func (f *fakeAckRepo) GetByID(ctx context.Context, id string) (*models.AlertEvent, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeAckRepo) Exists(ctx context.Context, id string) (bool, error) { return false, nil }
func (f *fakeAckRepo) List(ctx context.Context, opts repository.Filter) ([]models.AlertEvent, error) {
	return nil, nil
}
func (f *fakeAckRepo) MarkAcknowledged(ctx context.Context, id string, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	if f.acked == nil {
		f.acked = make(map[string]time.Time)
	}
	f.acked[id] = at
	return nil
}

func TestAckWriter_AcknowledgeUpdatesViewAndStore(t *testing.T) {
	view := NewViewState(10)
	view.MergeInsert(&models.AlertEvent{ID: "e1", DeviceID: "d1"})
	repo := &fakeAckRepo{}

	w := NewAckWriter(repo, view)
	if err := w.Acknowledge(context.Background(), "e1"); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}

	if _, ok := repo.acked["e1"]; !ok {
		t.Error("expected acknowledgment persisted")
	}
	if got := view.Unacknowledged(); len(got) != 0 {
		t.Errorf("expected empty unacknowledged list, got %d entries", len(got))
	}
}

func TestAckWriter_FailureRollsBackOptimisticUpdate(t *testing.T) {
	view := NewViewState(10)
	view.MergeInsert(&models.AlertEvent{ID: "e1", DeviceID: "d1"})
	repo := &fakeAckRepo{err: errors.New("store unavailable")}

	w := NewAckWriter(repo, view)
	err := w.Acknowledge(context.Background(), "e1")
	if err == nil {
		t.Fatal("expected write failure to surface")
	}

	unacked := view.Unacknowledged()
	if len(unacked) != 1 || unacked[0].ID != "e1" {
		t.Error("optimistic update should be rolled back on failure")
	}
	if unacked[0].AcknowledgedAt != nil {
		t.Error("rollback should clear acknowledgedAt")
	}
}

func TestAckWriter_NilViewStillPersists(t *testing.T) {
	repo := &fakeAckRepo{}
	w := NewAckWriter(repo, nil)

	if err := w.Acknowledge(context.Background(), "e1"); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if _, ok := repo.acked["e1"]; !ok {
		t.Error("expected acknowledgment persisted without a view")
	}
}

func TestViewState_MergeInsertDedupesAndTrims(t *testing.T) {
	view := NewViewState(3)

	for i := 0; i < 5; i++ {
		view.MergeInsert(&models.AlertEvent{ID: fmt.Sprintf("e%d", i)})
	}
	if view.Len() != 3 {
		t.Errorf("expected view trimmed to 3, got %d", view.Len())
	}

	// Redelivering an id moves it to the front instead of duplicating.
	view.MergeInsert(&models.AlertEvent{ID: "e3"})
	if view.Len() != 3 {
		t.Errorf("expected no growth on duplicate insert, got %d", view.Len())
	}
}

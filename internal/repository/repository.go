package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tmxfleet/alert-relay/internal/models"
)

// ErrNotFound is returned when an event id does not exist.
var ErrNotFound = errors.New("alert event not found")

// Filter narrows a List call.
type Filter struct {
	Limit          int
	Offset         int
	Since          *time.Time
	DeviceIDs      []string
	MinSeverity    *models.Severity
	Unacknowledged bool
}

// EventRepository is the durable store of alert events. The relay only
// inserts (ingest path) and flips acknowledgment state; events are
// never deleted here.
type EventRepository interface {
	Insert(ctx context.Context, ev *models.AlertEvent) error
	GetByID(ctx context.Context, id string) (*models.AlertEvent, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, opts Filter) ([]models.AlertEvent, error)
	// MarkAcknowledged sets acknowledged=true at the given time. The
	// write is idempotent: acknowledging twice equals acknowledging once.
	MarkAcknowledged(ctx context.Context, id string, at time.Time) error
}

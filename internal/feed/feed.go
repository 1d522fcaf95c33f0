package feed

import (
	"context"

	"github.com/tmxfleet/alert-relay/internal/models"
)

// Status is the lifecycle signal of one physical subscription.
type Status int

const (
	StatusSubscribed Status = iota
	StatusError
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusSubscribed:
		return "subscribed"
	case StatusError:
		return "error"
	case StatusTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Filter narrows a subscription to a single device server-side.
// A nil filter subscribes to the broadcast channel carrying all inserts.
type Filter struct {
	DeviceID string
}

// Subscription is one physical channel onto the shared feed. Events
// arrive in feed order for the lifetime of the subscription; Close
// stops delivery immediately.
type Subscription interface {
	Events() <-chan *models.AlertEvent
	Status() <-chan Status
	Close() error
}

// Feed is the shared multi-tenant change feed of alert-event inserts.
type Feed interface {
	Subscribe(ctx context.Context, filter *Filter) (Subscription, error)
}

package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tmxfleet/alert-relay/internal/feed"
)

// Backoff computes exponential reconnect delays.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns min(Base * 2^retry, Cap).
func (b Backoff) Delay(retry int) time.Duration {
	if retry > 30 {
		return b.Cap
	}
	d := b.Base << uint(retry)
	if d <= 0 || d > b.Cap {
		return b.Cap
	}
	return d
}

// Supervisor manages the resubscribe lifecycle of every physical
// subscription in the active plan, keyed by subscription name. Retry
// behavior is uniform across broadcast and per-device subscriptions.
//
// At most one reconnect timer exists per subscription: scheduling a new
// attempt clears any pending timer for that name first.
type Supervisor struct {
	mu          sync.Mutex
	backoff     Backoff
	resubscribe func(name string)
	retries     map[string]int
	timers      map[string]*time.Timer
}

func NewSupervisor(backoff Backoff, resubscribe func(name string)) *Supervisor {
	return &Supervisor{
		backoff:     backoff,
		resubscribe: resubscribe,
		retries:     make(map[string]int),
		timers:      make(map[string]*time.Timer),
	}
}

// OnStatus reacts to a status signal from one physical subscription.
func (s *Supervisor) OnStatus(name string, st feed.Status) {
	switch st {
	case feed.StatusSubscribed:
		s.mu.Lock()
		s.retries[name] = 0
		if t, ok := s.timers[name]; ok {
			t.Stop()
			delete(s.timers, name)
		}
		s.mu.Unlock()
	case feed.StatusError, feed.StatusTimedOut:
		s.schedule(name, st)
	}
}

func (s *Supervisor) schedule(name string, st feed.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[name]; ok {
		t.Stop()
	}

	delay := s.backoff.Delay(s.retries[name])
	s.retries[name]++

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[name] != timer {
			s.mu.Unlock()
			return
		}
		delete(s.timers, name)
		s.mu.Unlock()
		s.resubscribe(name)
	})
	s.timers[name] = timer

	slog.Info("scheduled resubscribe",
		"subscription", name, "status", st.String(), "delay", delay, "attempt", s.retries[name])
}

// RetryCount returns the current retry counter for one subscription.
func (s *Supervisor) RetryCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries[name]
}

// Cancel drops the pending timer and retry state for one subscription.
func (s *Supervisor) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
	delete(s.retries, name)
}

// CancelAll clears every pending timer and retry counter, used when a
// plan is torn down.
func (s *Supervisor) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
	s.retries = make(map[string]int)
}

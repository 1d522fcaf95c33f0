package relay

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/tmxfleet/alert-relay/internal/feed"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 30 * time.Second}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for retry, expected := range want {
		if got := b.Delay(retry); got != expected {
			t.Errorf("Delay(%d) = %s, want %s", retry, got, expected)
		}
	}

	// Huge retry counts must not overflow past the cap.
	if got := b.Delay(64); got != 30*time.Second {
		t.Errorf("Delay(64) = %s, want cap", got)
	}
}

func TestSupervisor_RetrySequenceAndReset(t *testing.T) {
	var resubs atomic.Int64
	s := NewSupervisor(Backoff{Base: time.Millisecond, Cap: 8 * time.Millisecond}, func(name string) {
		resubs.Add(1)
	})

	// timed-out, timed-out: counter climbs with each scheduled attempt.
	s.OnStatus("broadcast", feed.StatusTimedOut)
	if s.RetryCount("broadcast") != 1 {
		t.Errorf("expected retry count 1, got %d", s.RetryCount("broadcast"))
	}

	waitFor(t, func() bool { return resubs.Load() == 1 })

	s.OnStatus("broadcast", feed.StatusTimedOut)
	if s.RetryCount("broadcast") != 2 {
		t.Errorf("expected retry count 2, got %d", s.RetryCount("broadcast"))
	}

	waitFor(t, func() bool { return resubs.Load() == 2 })

	// subscribed: counter resets to zero.
	s.OnStatus("broadcast", feed.StatusSubscribed)
	if s.RetryCount("broadcast") != 0 {
		t.Errorf("expected retry count reset to 0, got %d", s.RetryCount("broadcast"))
	}
}

func TestSupervisor_SingleTimerPerSubscription(t *testing.T) {
	var resubs atomic.Int64
	s := NewSupervisor(Backoff{Base: 20 * time.Millisecond, Cap: 100 * time.Millisecond}, func(name string) {
		resubs.Add(1)
	})

	// Two failures in quick succession; the second schedule clears the
	// first pending timer, so only one resubscribe fires.
	s.OnStatus("device:d1", feed.StatusError)
	s.OnStatus("device:d1", feed.StatusError)

	waitFor(t, func() bool { return resubs.Load() >= 1 })
	time.Sleep(60 * time.Millisecond)

	if got := resubs.Load(); got != 1 {
		t.Errorf("expected exactly 1 resubscribe, got %d", got)
	}
}

func TestSupervisor_IndependentSubscriptions(t *testing.T) {
	var resubs atomic.Int64
	s := NewSupervisor(Backoff{Base: time.Millisecond, Cap: 8 * time.Millisecond}, func(name string) {
		resubs.Add(1)
	})

	s.OnStatus("device:d1", feed.StatusError)
	s.OnStatus("device:d2", feed.StatusError)

	waitFor(t, func() bool { return resubs.Load() == 2 })

	if s.RetryCount("device:d1") != 1 || s.RetryCount("device:d2") != 1 {
		t.Error("each subscription keeps its own retry counter")
	}
}

func TestSupervisor_CancelStopsPendingTimer(t *testing.T) {
	var resubs atomic.Int64
	s := NewSupervisor(Backoff{Base: 20 * time.Millisecond, Cap: 100 * time.Millisecond}, func(name string) {
		resubs.Add(1)
	})

	s.OnStatus("broadcast", feed.StatusError)
	s.Cancel("broadcast")

	time.Sleep(50 * time.Millisecond)
	if resubs.Load() != 0 {
		t.Error("cancelled timer must not fire")
	}
	if s.RetryCount("broadcast") != 0 {
		t.Error("cancel clears retry state")
	}
}

func TestSupervisor_CancelAll(t *testing.T) {
	var resubs atomic.Int64
	s := NewSupervisor(Backoff{Base: 20 * time.Millisecond, Cap: 100 * time.Millisecond}, func(name string) {
		resubs.Add(1)
	})

	s.OnStatus("device:d1", feed.StatusError)
	s.OnStatus("device:d2", feed.StatusTimedOut)
	s.CancelAll()

	time.Sleep(50 * time.Millisecond)
	if resubs.Load() != 0 {
		t.Errorf("expected no resubscribes after CancelAll, got %d", resubs.Load())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

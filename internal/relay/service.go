package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tmxfleet/alert-relay/internal/feed"
	"github.com/tmxfleet/alert-relay/internal/models"
)

const (
	DefaultMaxDeviceSubscriptions = 10
	DefaultDedupCapacity          = 1000
	DefaultBackoffBase            = time.Second
	DefaultBackoffCap             = 30 * time.Second
)

// Options tune one relay session.
type Options struct {
	MaxDeviceSubscriptions int
	DedupCapacity          int
	Backoff                Backoff

	// SessionValid is consulted when a subscription reports a transport
	// error; returning false means the session's auth is gone and the
	// error escalates instead of retrying. Nil means always valid.
	SessionValid func(ctx context.Context) bool

	// OnReauthRequired fires at most once per session when SessionValid
	// fails during a channel error.
	OnReauthRequired func()
}

func (o *Options) applyDefaults() {
	if o.MaxDeviceSubscriptions <= 0 {
		o.MaxDeviceSubscriptions = DefaultMaxDeviceSubscriptions
	}
	if o.DedupCapacity <= 0 {
		o.DedupCapacity = DefaultDedupCapacity
	}
	if o.Backoff.Base <= 0 {
		o.Backoff.Base = DefaultBackoffBase
	}
	if o.Backoff.Cap <= 0 {
		o.Backoff.Cap = DefaultBackoffCap
	}
}

type handlerFunc func(ev *models.AlertEvent)

type physSub struct {
	filter *feed.Filter
	sub    feed.Subscription
}

// Service owns one authenticated session's slice of the feed: it
// derives the subscription plan, keeps the physical subscriptions alive
// through the supervisor, and funnels every inbound insert through
// authorization, dedup and the dispatch coordinator.
//
// Events are processed one at a time by a single dispatch loop; only
// the email and push actuators run asynchronously.
type Service struct {
	opts   Options
	source feed.Feed
	coord  *Coordinator
	view   *ViewState

	// handler is the always-current dispatch callback; it is swapped
	// whenever the session changes and read at delivery time.
	handler atomic.Pointer[handlerFunc]

	mu      sync.Mutex
	session *models.Session
	subs    map[string]*physSub
	started bool
	stopped bool

	sup   *Supervisor
	dedup *DedupCache
	authz *AuthFilter

	events     chan *models.AlertEvent
	ctx        context.Context
	cancel     context.CancelFunc
	pumps      sync.WaitGroup
	loopDone   chan struct{}
	reauthOnce sync.Once
}

func NewService(source feed.Feed, coord *Coordinator, view *ViewState, opts Options) *Service {
	opts.applyDefaults()
	return &Service{
		opts:     opts,
		source:   source,
		coord:    coord,
		view:     view,
		subs:     make(map[string]*physSub),
		events:   make(chan *models.AlertEvent, 256),
		loopDone: make(chan struct{}),
	}
}

// Start installs the subscription plan for sess and begins dispatching.
func (s *Service) Start(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("relay service already started")
	}
	s.started = true

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.dedup = NewDedupCache(s.opts.DedupCapacity)
	s.authz = NewAuthFilter()
	s.sup = NewSupervisor(s.opts.Backoff, s.resubscribe)

	s.session = sess
	s.installHandler(sess)

	go s.dispatchLoop()

	s.installPlanLocked(sess)
	return nil
}

// UpdateSession replaces the session snapshot (role, assignments, push
// permission). The old plan is torn down and a fresh plan installed;
// the dedup cache absorbs any redelivery across the switch.
func (s *Service) UpdateSession(sess *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return
	}
	s.session = sess
	s.installHandler(sess)
	s.installPlanLocked(sess)
}

// Stop tears down every subscription and waits for the dispatch loop to
// drain. In-flight asynchronous actuator calls are not cancelled here.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.sup.CancelAll()
	for _, ps := range s.subs {
		if ps.sub != nil {
			ps.sub.Close()
		}
	}
	s.subs = make(map[string]*physSub)
	s.mu.Unlock()

	s.cancel()
	s.pumps.Wait()
	<-s.loopDone
}

// View exposes the session's local view state.
func (s *Service) View() *ViewState {
	return s.view
}

// SubscriptionCount returns the number of physical subscriptions in the
// active plan.
func (s *Service) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Service) installHandler(sess *models.Session) {
	h := handlerFunc(func(ev *models.AlertEvent) {
		if !s.authz.Visible(sess, ev) {
			return
		}
		if s.dedup.Seen(ev.ID) {
			return
		}
		s.dedup.Record(ev.ID)
		s.view.MergeInsert(ev)
		s.coord.Dispatch(s.ctx, sess, ev)
	})
	s.handler.Store(&h)
}

func (s *Service) dispatchLoop() {
	defer close(s.loopDone)

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			if h := s.handler.Load(); h != nil {
				(*h)(ev)
			}
		}
	}
}

// installPlanLocked tears down the active plan, then opens the
// subscriptions of the new one. Callers hold s.mu.
func (s *Service) installPlanLocked(sess *models.Session) {
	s.sup.CancelAll()
	for _, ps := range s.subs {
		if ps.sub != nil {
			ps.sub.Close()
		}
	}
	s.subs = make(map[string]*physSub)

	plan := PlanSubscriptions(sess.Role, sess.Devices, s.opts.MaxDeviceSubscriptions)
	slog.Info("installing subscription plan",
		"user_id", sess.UserID, "mode", string(plan.Mode), "devices", len(plan.Devices))

	if plan.Mode == PlanBroadcast {
		s.subs["broadcast"] = &physSub{}
		s.subscribeLocked("broadcast")
		return
	}
	for _, deviceID := range plan.Devices {
		name := "device:" + deviceID
		s.subs[name] = &physSub{filter: &feed.Filter{DeviceID: deviceID}}
		s.subscribeLocked(name)
	}
}

// subscribeLocked opens (or reopens) one physical subscription. A
// failed subscribe goes through the supervisor like any other channel
// error. Callers hold s.mu.
func (s *Service) subscribeLocked(name string) {
	ps, ok := s.subs[name]
	if !ok {
		return
	}

	sub, err := s.source.Subscribe(s.ctx, ps.filter)
	if err != nil {
		slog.Warn("subscribe failed", "subscription", name, "error", err)
		// Off the lock: a refused subscribe goes through the same
		// auth-vs-transport decision as an in-flight channel error.
		go s.failSubscription(name, feed.StatusError)
		return
	}

	ps.sub = sub
	s.pumps.Add(1)
	go s.pump(name, sub)
}

// resubscribe is the supervisor's timer callback. The subscription is
// recreated from scratch; the transport does not support mid-flight
// filter changes.
func (s *Service) resubscribe(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if _, ok := s.subs[name]; !ok {
		// Superseded by a plan change while the timer was pending.
		return
	}
	s.subscribeLocked(name)
}

func (s *Service) pump(name string, sub feed.Subscription) {
	defer s.pumps.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			select {
			case s.events <- ev:
			case <-s.ctx.Done():
				return
			}
		case st, ok := <-sub.Status():
			if !ok {
				return
			}
			s.handleStatus(name, st)
			if st != feed.StatusSubscribed {
				return
			}
		}
	}
}

func (s *Service) handleStatus(name string, st feed.Status) {
	if st == feed.StatusSubscribed {
		s.sup.OnStatus(name, st)
		return
	}

	s.mu.Lock()
	if ps, ok := s.subs[name]; ok && ps.sub != nil {
		ps.sub.Close()
		ps.sub = nil
	}
	s.mu.Unlock()

	s.failSubscription(name, st)
}

// failSubscription decides what a failed subscription means: an error
// with invalid session auth escalates to the one-shot reauth signal, a
// transport fault goes to the supervisor for backoff. Must not be
// called with s.mu held.
func (s *Service) failSubscription(name string, st feed.Status) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}

	if st == feed.StatusError && s.opts.SessionValid != nil && !s.opts.SessionValid(s.ctx) {
		// The transport failure is really an auth failure; retrying
		// would loop forever against a dead session.
		s.reauthOnce.Do(func() {
			slog.Warn("session auth invalid during channel error, forcing reauthentication",
				"subscription", name)
			if s.opts.OnReauthRequired != nil {
				s.opts.OnReauthRequired()
			}
		})
		return
	}

	s.sup.OnStatus(name, st)
}

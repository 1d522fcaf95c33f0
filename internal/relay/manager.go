package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tmxfleet/alert-relay/internal/feed"
	"github.com/tmxfleet/alert-relay/internal/models"
)

// Manager starts one Service per authenticated user when their first
// connection attaches and stops it when the last one goes away.
type Manager struct {
	source feed.Feed
	coord  *Coordinator
	opts   Options

	viewLimit int

	// SessionValid and OnReauth are bound into each service at Attach
	// time; both may be nil.
	SessionValid func(ctx context.Context, token string) bool
	OnReauth     func(userID string)

	mu     sync.Mutex
	active map[string]*Service
}

func NewManager(source feed.Feed, coord *Coordinator, viewLimit int, opts Options) *Manager {
	return &Manager{
		source:    source,
		coord:     coord,
		opts:      opts,
		viewLimit: viewLimit,
		active:    make(map[string]*Service),
	}
}

// Attach returns the running service for sess, starting one if needed.
// A changed session snapshot (new role or assignments) replaces the
// plan of the running service.
func (m *Manager) Attach(ctx context.Context, sess *models.Session, token string) (*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if svc, ok := m.active[sess.UserID]; ok {
		svc.UpdateSession(sess)
		return svc, nil
	}

	opts := m.opts
	if m.SessionValid != nil {
		opts.SessionValid = func(ctx context.Context) bool {
			return m.SessionValid(ctx, token)
		}
	}
	if m.OnReauth != nil {
		userID := sess.UserID
		opts.OnReauthRequired = func() {
			m.OnReauth(userID)
		}
	}

	svc := NewService(m.source, m.coord, NewViewState(m.viewLimit), opts)
	if err := svc.Start(ctx, sess); err != nil {
		return nil, err
	}
	m.active[sess.UserID] = svc
	slog.Info("relay session started", "user_id", sess.UserID, "role", string(sess.Role))
	return svc, nil
}

// Detach stops and forgets the user's service, tearing down all of its
// subscriptions.
func (m *Manager) Detach(userID string) {
	m.mu.Lock()
	svc, ok := m.active[userID]
	delete(m.active, userID)
	m.mu.Unlock()

	if ok {
		svc.Stop()
		slog.Info("relay session stopped", "user_id", userID)
	}
}

// Lookup returns the running service for userID, if any.
func (m *Manager) Lookup(userID string) (*Service, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	svc, ok := m.active[userID]
	return svc, ok
}

// Shutdown stops every active session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	services := make([]*Service, 0, len(m.active))
	for _, svc := range m.active {
		services = append(services, svc)
	}
	m.active = make(map[string]*Service)
	m.mu.Unlock()

	for _, svc := range services {
		svc.Stop()
	}
}

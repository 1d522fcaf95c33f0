package relay

import (
	"log/slog"

	"github.com/tmxfleet/alert-relay/internal/models"
)

// AuthFilter drops events the session is not authorized to observe.
// Unauthorized events are dropped before the dedup cache so they never
// consume its capacity.
//
// Owned by the dispatch loop; not safe for concurrent use.
type AuthFilter struct {
	logged map[string]struct{}
}

func NewAuthFilter() *AuthFilter {
	return &AuthFilter{logged: make(map[string]struct{})}
}

// Visible reports whether ev may reach the session. Admins see
// everything; standard users only their assigned devices. The drop is
// logged at most once per device per session so a noisy unassigned
// device cannot flood the log.
func (f *AuthFilter) Visible(sess *models.Session, ev *models.AlertEvent) bool {
	if sess.IsAdmin() {
		return true
	}
	if sess.Devices.Contains(ev.DeviceID) {
		return true
	}

	if _, ok := f.logged[ev.DeviceID]; !ok {
		f.logged[ev.DeviceID] = struct{}{}
		slog.Warn("dropping event for unassigned device",
			"user_id", sess.UserID, "device_id", ev.DeviceID, "event_id", ev.ID)
	}
	return false
}

package notify

import (
	"github.com/tmxfleet/alert-relay/internal/models"
	"github.com/tmxfleet/alert-relay/internal/ws"
)

// Toast is the in-app presentation of an alert.
type Toast struct {
	EventID  string          `json:"eventId"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Severity models.Severity `json:"severity"`
}

// PushData rides along with a system push so the client can route a
// notification click back to the event.
type PushData struct {
	EventID   string `json:"eventId"`
	DeviceID  string `json:"deviceId"`
	EventType string `json:"eventType"`
}

// PushNotification is the system push payload. The tag collapses
// duplicate deliveries in the OS notification shade the same way the
// dedup cache collapses them in-process.
type PushNotification struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Tag                string   `json:"tag"`
	RequireInteraction bool     `json:"requireInteraction"`
	Silent             bool     `json:"silent"`
	Vibrate            []int    `json:"vibrate"`
	Renotify           bool     `json:"renotify"`
	Timestamp          int64    `json:"timestamp"`
	Data               PushData `json:"data"`
}

// Notifier actuates the client-facing channels for one user.
type Notifier interface {
	PlaySound(userID string, volume float64) error
	ShowToast(userID string, t Toast) error
	Push(userID string, n PushNotification) error
}

type command struct {
	Type         string            `json:"type"`
	Volume       float64           `json:"volume,omitempty"`
	Toast        *Toast            `json:"toast,omitempty"`
	Notification *PushNotification `json:"notification,omitempty"`
}

// ClientNotifier delivers actuator commands over the user's WebSocket
// connections.
type ClientNotifier struct {
	hub *ws.Hub
}

func NewClientNotifier(hub *ws.Hub) *ClientNotifier {
	return &ClientNotifier{hub: hub}
}

func (n *ClientNotifier) PlaySound(userID string, volume float64) error {
	return n.hub.SendJSON(userID, command{Type: "sound", Volume: volume})
}

func (n *ClientNotifier) ShowToast(userID string, t Toast) error {
	return n.hub.SendJSON(userID, command{Type: "toast", Toast: &t})
}

func (n *ClientNotifier) Push(userID string, p PushNotification) error {
	return n.hub.SendJSON(userID, command{Type: "push", Notification: &p})
}

// RequireReauth tells the user's clients to run the re-authentication
// flow. The relay fires this at most once per session.
func (n *ClientNotifier) RequireReauth(userID string) error {
	return n.hub.SendJSON(userID, command{Type: "reauth"})
}

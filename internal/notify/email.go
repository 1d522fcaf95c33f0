package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tmxfleet/alert-relay/internal/models"
)

// EmailPayload is the body handed to the external email notifier.
type EmailPayload struct {
	EventID   string          `json:"eventId"`
	DeviceID  string          `json:"deviceId"`
	EventType string          `json:"eventType"`
	Severity  models.Severity `json:"severity"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

func EmailPayloadFor(ev *models.AlertEvent) EmailPayload {
	return EmailPayload{
		EventID:   ev.ID,
		DeviceID:  ev.DeviceID,
		EventType: ev.EventType,
		Severity:  ev.Severity,
		Title:     ev.Title,
		Message:   ev.Message,
		Metadata:  ev.Metadata,
	}
}

// EmailSender invokes the external email notifier. Calls are
// fire-and-forget from the dispatch path: failures are logged by the
// caller, never retried, never surfaced to the user.
type EmailSender interface {
	Send(ctx context.Context, p EmailPayload) error
}

// HTTPEmailSender posts payloads to the notifier endpoint.
type HTTPEmailSender struct {
	client *resty.Client
	url    string
}

func NewHTTPEmailSender(url string, timeout time.Duration) *HTTPEmailSender {
	return &HTTPEmailSender{
		client: resty.New().SetTimeout(timeout),
		url:    url,
	}
}

func (s *HTTPEmailSender) Send(ctx context.Context, p EmailPayload) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(p).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("posting email notification for %s: %w", p.EventID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("email notifier returned %s for %s", resp.Status(), p.EventID)
	}
	return nil
}

package relay

import (
	"context"
	"log/slog"

	"github.com/tmxfleet/alert-relay/internal/models"
	"github.com/tmxfleet/alert-relay/internal/notify"
	"github.com/tmxfleet/alert-relay/internal/worker"
)

// TaskRunner executes fire-and-forget actuator work (steps 4 and 5 of a
// dispatch) off the dispatch loop.
type TaskRunner interface {
	TrySubmit(task worker.Task) bool
}

const criticalTitlePrefix = "[CRITICAL] "

// VibratePattern maps severity to the push vibration pattern: higher
// severity, more and longer pulses.
func VibratePattern(sev models.Severity) []int {
	switch sev {
	case models.SeverityWarning:
		return []int{200, 100, 200}
	case models.SeverityError:
		return []int{200, 100, 200, 100, 200}
	case models.SeverityCritical:
		return []int{400, 200, 400, 200, 400, 200, 400}
	default:
		return []int{200}
	}
}

// BuildPush assembles the system push payload for ev. The tag is
// derived from the event id so the OS shade collapses redeliveries.
func BuildPush(ev *models.AlertEvent) notify.PushNotification {
	title := ev.Title
	if ev.Severity == models.SeverityCritical {
		title = criticalTitlePrefix + title
	}
	return notify.PushNotification{
		Title:              title,
		Body:               ev.Message,
		Tag:                "alert-" + ev.ID,
		RequireInteraction: ev.Severity == models.SeverityCritical,
		Silent:             false,
		Vibrate:            VibratePattern(ev.Severity),
		Renotify:           true,
		Timestamp:          ev.CreatedAt.UnixMilli(),
		Data: notify.PushData{
			EventID:   ev.ID,
			DeviceID:  ev.DeviceID,
			EventType: ev.EventType,
		},
	}
}

// Coordinator fans one accepted, deduplicated event out to the channel
// actuators. The actuators are independent, not a transaction: a
// failure downstream never rolls back an earlier effect.
type Coordinator struct {
	eval     *Evaluator
	notifier notify.Notifier
	email    notify.EmailSender // nil when email dispatch is disabled
	runner   TaskRunner
}

func NewCoordinator(eval *Evaluator, notifier notify.Notifier, email notify.EmailSender, runner TaskRunner) *Coordinator {
	return &Coordinator{
		eval:     eval,
		notifier: notifier,
		email:    email,
		runner:   runner,
	}
}

// Dispatch runs the per-event actuation sequence: sound, toast, email
// trigger, system push. Sound and toast are synchronous; email and push
// are fire-and-forget.
func (c *Coordinator) Dispatch(ctx context.Context, sess *models.Session, ev *models.AlertEvent) {
	alertType := models.NormalizeEventType(ev.EventType)

	if c.eval.ShouldPlaySound(alertType, ev.Severity) {
		if err := c.notifier.PlaySound(sess.UserID, c.eval.Volume()); err != nil {
			slog.Debug("sound actuator failed", "event_id", ev.ID, "error", err)
		}
	}

	if c.shouldToast(alertType, ev.Severity) {
		toast := notify.Toast{
			EventID:  ev.ID,
			Title:    ev.Title,
			Message:  ev.Message,
			Severity: ev.Severity,
		}
		if err := c.notifier.ShowToast(sess.UserID, toast); err != nil {
			slog.Debug("toast actuator failed", "event_id", ev.ID, "error", err)
		}
	}

	if c.email != nil && ev.Severity.AtLeast(models.SeverityError) {
		payload := notify.EmailPayloadFor(ev)
		submitted := c.runner.TrySubmit(func(ctx context.Context) {
			if err := c.email.Send(ctx, payload); err != nil {
				slog.Warn("email dispatch failed", "event_id", payload.EventID, "error", err)
			}
		})
		if !submitted {
			slog.Warn("email dispatch dropped, task queue full", "event_id", ev.ID)
		}
	}

	if sess.PushGranted && c.eval.ShouldShowPush(alertType, ev.Severity) {
		userID := sess.UserID
		push := BuildPush(ev)
		submitted := c.runner.TrySubmit(func(ctx context.Context) {
			if err := c.notifier.Push(userID, push); err != nil {
				slog.Debug("push actuator failed", "event_id", push.Data.EventID, "error", err)
			}
		})
		if !submitted {
			slog.Warn("push dropped, task queue full", "event_id", ev.ID)
		}
	}
}

// shouldToast: warning and above always present in-app; info-level
// toasts piggyback on the push preference rather than having their own
// toggle.
func (c *Coordinator) shouldToast(t models.AlertType, sev models.Severity) bool {
	if sev.AtLeast(models.SeverityWarning) {
		return true
	}
	return c.eval.ShouldShowPush(t, sev)
}

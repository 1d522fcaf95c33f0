package models

import "time"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

var severityWeight = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// Weight returns the escalation rank of s. Unknown severities rank
// below info so they never trigger escalation paths.
func (s Severity) Weight() int {
	if w, ok := severityWeight[s]; ok {
		return w
	}
	return -1
}

func (s Severity) Valid() bool {
	_, ok := severityWeight[s]
	return ok
}

// AtLeast reports whether s escalates to min or higher.
func (s Severity) AtLeast(min Severity) bool {
	return s.Weight() >= min.Weight()
}

// ParseSeverity maps a raw string to a Severity, defaulting to info
// for anything unrecognized.
func ParseSeverity(raw string) Severity {
	s := Severity(raw)
	if s.Valid() {
		return s
	}
	return SeverityInfo
}

// SeveritiesAtLeast returns all valid severities with weight >= min,
// lowest first.
func SeveritiesAtLeast(min Severity) []Severity {
	all := []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}
	out := make([]Severity, 0, len(all))
	for _, s := range all {
		if s.AtLeast(min) {
			out = append(out, s)
		}
	}
	return out
}

// AlertEvent is the unit of distribution. The id is globally unique and
// stable across feed redelivery; only the acknowledgment fields are ever
// mutated after creation.
type AlertEvent struct {
	ID             string         `json:"id"`
	DeviceID       string         `json:"deviceId"`
	EventType      string         `json:"eventType"`
	Severity       Severity       `json:"severity"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	Acknowledged   bool           `json:"acknowledged"`
	AcknowledgedAt *time.Time     `json:"acknowledgedAt,omitempty"`
}

// AlertType is the canonical tag an event's raw type normalizes to.
type AlertType string

const (
	TypeLowBattery    AlertType = "low_battery"
	TypeGeofenceExit  AlertType = "geofence_exit"
	TypeGeofenceEnter AlertType = "geofence_enter"
	TypeSpeeding      AlertType = "speeding"
	TypeEngineFault   AlertType = "engine_fault"
	TypeDeviceOffline AlertType = "device_offline"
	TypeImpact        AlertType = "impact"
)

// Telemetry sources tag the same condition inconsistently; this table
// folds the known raw tags into one canonical type each.
var eventTypeAliases = map[string]AlertType{
	"low_battery":          TypeLowBattery,
	"battery_low":          TypeLowBattery,
	"battery_critical":     TypeLowBattery,
	"geofence_exit":        TypeGeofenceExit,
	"zone_exit":            TypeGeofenceExit,
	"geofence_violation":   TypeGeofenceExit,
	"geofence_enter":       TypeGeofenceEnter,
	"zone_enter":           TypeGeofenceEnter,
	"speeding":             TypeSpeeding,
	"overspeed":            TypeSpeeding,
	"speed_limit_exceeded": TypeSpeeding,
	"engine_fault":         TypeEngineFault,
	"dtc_reported":         TypeEngineFault,
	"malfunction":          TypeEngineFault,
	"device_offline":       TypeDeviceOffline,
	"offline":              TypeDeviceOffline,
	"no_signal":            TypeDeviceOffline,
	"impact":               TypeImpact,
	"collision":            TypeImpact,
	"harsh_braking":        TypeImpact,
}

// NormalizeEventType maps a raw event type tag to its canonical
// AlertType. Unrecognized tags pass through as their own canonical tag.
func NormalizeEventType(raw string) AlertType {
	if t, ok := eventTypeAliases[raw]; ok {
		return t
	}
	return AlertType(raw)
}

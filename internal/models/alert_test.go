package models

import "testing"

func TestSeverity_Ordering(t *testing.T) {
	ordered := []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Weight() <= ordered[i-1].Weight() {
			t.Errorf("expected %s to outrank %s", ordered[i], ordered[i-1])
		}
	}

	if !SeverityCritical.AtLeast(SeverityError) {
		t.Error("critical should be at least error")
	}
	if SeverityInfo.AtLeast(SeverityWarning) {
		t.Error("info should not be at least warning")
	}
	if Severity("bogus").AtLeast(SeverityInfo) {
		t.Error("unknown severity should rank below info")
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		raw  string
		want Severity
	}{
		{"info", SeverityInfo},
		{"warning", SeverityWarning},
		{"error", SeverityError},
		{"critical", SeverityCritical},
		{"", SeverityInfo},
		{"CRITICAL", SeverityInfo},
		{"panic", SeverityInfo},
	}

	for _, tt := range tests {
		if got := ParseSeverity(tt.raw); got != tt.want {
			t.Errorf("ParseSeverity(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestSeveritiesAtLeast(t *testing.T) {
	got := SeveritiesAtLeast(SeverityError)
	if len(got) != 2 || got[0] != SeverityError || got[1] != SeverityCritical {
		t.Errorf("unexpected severities: %v", got)
	}

	if len(SeveritiesAtLeast(SeverityInfo)) != 4 {
		t.Error("expected all four severities at least info")
	}
}

func TestNormalizeEventType(t *testing.T) {
	tests := []struct {
		raw  string
		want AlertType
	}{
		{"low_battery", TypeLowBattery},
		{"battery_low", TypeLowBattery},
		{"battery_critical", TypeLowBattery},
		{"zone_exit", TypeGeofenceExit},
		{"geofence_violation", TypeGeofenceExit},
		{"overspeed", TypeSpeeding},
		{"dtc_reported", TypeEngineFault},
		{"no_signal", TypeDeviceOffline},
		{"collision", TypeImpact},
		// Unrecognized tags pass through as their own canonical tag.
		{"tire_pressure", AlertType("tire_pressure")},
		{"", AlertType("")},
	}

	for _, tt := range tests {
		if got := NormalizeEventType(tt.raw); got != tt.want {
			t.Errorf("NormalizeEventType(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestDeviceSet(t *testing.T) {
	s := NewDeviceSet("d2", "d1", "", "d1")

	if s.Len() != 2 {
		t.Errorf("expected 2 devices, got %d", s.Len())
	}
	if !s.Contains("d1") || !s.Contains("d2") {
		t.Error("expected d1 and d2 to be members")
	}
	if s.Contains("") {
		t.Error("empty id should never be a member")
	}

	ids := s.IDs()
	if len(ids) != 2 || ids[0] != "d1" || ids[1] != "d2" {
		t.Errorf("expected sorted [d1 d2], got %v", ids)
	}
}

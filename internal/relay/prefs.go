package relay

import "github.com/tmxfleet/alert-relay/internal/models"

// PrefKey gates one (canonical type, severity) pair.
type PrefKey struct {
	Type     models.AlertType
	Severity models.Severity
}

// PreferenceSet is the per-user notification gating snapshot. It is
// owned and refreshed by an external preference service; the relay only
// reads it. A pair absent from a map is enabled, so the external
// service only stores explicit opt-outs.
type PreferenceSet struct {
	Volume float64
	Sound  map[PrefKey]bool
	Push   map[PrefKey]bool
}

func DefaultPreferences() *PreferenceSet {
	return &PreferenceSet{Volume: 0.8}
}

// PreferenceProvider returns the current preference snapshot. It is
// consulted on every dispatch, never cached, since preferences can
// change between events.
type PreferenceProvider interface {
	Preferences() *PreferenceSet
}

// StaticPreferences is a fixed PreferenceProvider, used when no
// external preference service is wired and in tests.
type StaticPreferences struct {
	Set *PreferenceSet
}

func (s StaticPreferences) Preferences() *PreferenceSet {
	return s.Set
}

// Evaluator answers the two independent gating questions for a
// dispatch: play a sound, and show a system push.
type Evaluator struct {
	prefs PreferenceProvider
}

func NewEvaluator(prefs PreferenceProvider) *Evaluator {
	return &Evaluator{prefs: prefs}
}

func (e *Evaluator) ShouldPlaySound(t models.AlertType, sev models.Severity) bool {
	set := e.prefs.Preferences()
	if set == nil {
		return true
	}
	return lookup(set.Sound, t, sev)
}

func (e *Evaluator) ShouldShowPush(t models.AlertType, sev models.Severity) bool {
	set := e.prefs.Preferences()
	if set == nil {
		return true
	}
	return lookup(set.Push, t, sev)
}

func (e *Evaluator) Volume() float64 {
	set := e.prefs.Preferences()
	if set == nil {
		return DefaultPreferences().Volume
	}
	return set.Volume
}

func lookup(m map[PrefKey]bool, t models.AlertType, sev models.Severity) bool {
	if m == nil {
		return true
	}
	if enabled, ok := m[PrefKey{Type: t, Severity: sev}]; ok {
		return enabled
	}
	return true
}

package scheduler

import (
	"github.com/joeycumines/go-arbiter/internal/behavior"
)

// DefaultUILockID is the lock installed on suppressed trigger kinds while a
// UI-requested unit runs.
const DefaultUILockID = "bm_ui_request_game_lock"

// OverrideKind distinguishes voice from UI overrides.
type OverrideKind int

const (
	NoOverride OverrideKind = iota
	Voice
	UI
)

func (k OverrideKind) String() string {
	switch k {
	case Voice:
		return "voice"
	case UI:
		return "ui"
	default:
		return "none"
	}
}

// OverrideTable resolves capability ids to the units that serve them.
type OverrideTable struct {
	Voice map[string]behavior.ID
	UI    map[string]behavior.ID
	// UISuppress lists the trigger kinds locked while a UI unit runs.
	UISuppress []behavior.TriggerKind
}

// Resolve returns the unit serving capability for kind.
func (t OverrideTable) Resolve(kind OverrideKind, capability string) (behavior.ID, bool) {
	var m map[string]behavior.ID
	switch kind {
	case Voice:
		m = t.Voice
	case UI:
		m = t.UI
	}
	id, ok := m[capability]
	return id, ok && !id.IsNone()
}

// override is the single pending or active voice/UI request.
type override struct {
	kind       OverrideKind
	capability string
	unit       behavior.ID
	active     bool
}

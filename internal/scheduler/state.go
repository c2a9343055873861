package scheduler

import (
	"github.com/joeycumines/go-arbiter/internal/behavior"
)

// State is the coarse scheduler state derived from RunningState.
type State int

const (
	// Idle means no unit is running.
	Idle State = iota
	// Scored means a unit selected by scoring or an override is running.
	Scored
	// Reactionary means a unit started by a trigger is running.
	Reactionary
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Scored:
		return "Scored"
	case Reactionary:
		return "Reactionary"
	default:
		return "Unknown"
	}
}

// RunningState is the current unit, the trigger kind that started it, and
// the unit to resume once it finishes. Zero fields mean none.
type RunningState struct {
	Current behavior.ID
	Trigger behavior.TriggerKind
	Resume  behavior.ID
}

// Reactionary reports whether the current unit was started by a trigger.
func (r RunningState) Reactionary() bool { return r.Trigger != behavior.NoTrigger }

// State classifies r.
func (r RunningState) State() State {
	switch {
	case r.Current.IsNone():
		return Idle
	case r.Reactionary():
		return Reactionary
	default:
		return Scored
	}
}

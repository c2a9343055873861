package activity

import (
	"time"

	"github.com/joeycumines/go-arbiter/internal/condition"
	"github.com/joeycumines/go-arbiter/internal/world"
)

// Strategy decides when a sub-activity wants the slot for its spark.
type Strategy interface {
	// WantsToStart is asked of sub-activities that are not selected.
	// lastStopped and lastStarted are zero if the sub-activity never ran.
	WantsToStart(now, lastStopped, lastStarted time.Time) bool
	// WantsToEnd is asked of the selected sub-activity.
	WantsToEnd(now time.Time, runningFor time.Duration) bool
}

// Always starts whenever asked and never ends on its own.
type Always struct{}

func (Always) WantsToStart(time.Time, time.Time, time.Time) bool { return true }
func (Always) WantsToEnd(time.Time, time.Duration) bool          { return false }

// Timed enforces a cooldown after stopping and an optional maximum
// duration.
type Timed struct {
	Cooldown    time.Duration
	MaxDuration time.Duration
}

func (s Timed) WantsToStart(now, lastStopped, _ time.Time) bool {
	return lastStopped.IsZero() || now.Sub(lastStopped) >= s.Cooldown
}

func (s Timed) WantsToEnd(_ time.Time, runningFor time.Duration) bool {
	return s.MaxDuration > 0 && runningFor >= s.MaxDuration
}

// Expr extends Timed with expressions over the world blackboard. Start and
// End see the blackboard plus "runningFor" and "sinceStopped" in seconds
// (sinceStopped is -1 if never stopped).
type Expr struct {
	Timed
	Start *condition.Bool
	End   *condition.Bool
	World *world.Blackboard
}

func (s Expr) env(now, lastStopped time.Time, runningFor time.Duration) map[string]any {
	since := -1.0
	if !lastStopped.IsZero() {
		since = now.Sub(lastStopped).Seconds()
	}
	extra := map[string]any{
		"runningFor":   runningFor.Seconds(),
		"sinceStopped": since,
	}
	if s.World == nil {
		return extra
	}
	return s.World.Env(extra)
}

func (s Expr) WantsToStart(now, lastStopped, lastStarted time.Time) bool {
	if !s.Timed.WantsToStart(now, lastStopped, lastStarted) {
		return false
	}
	return s.Start == nil || s.Start.Eval(s.env(now, lastStopped, 0))
}

func (s Expr) WantsToEnd(now time.Time, runningFor time.Duration) bool {
	if s.Timed.WantsToEnd(now, runningFor) {
		return true
	}
	return s.End != nil && s.End.Eval(s.env(now, time.Time{}, runningFor))
}

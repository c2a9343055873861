package trigger

import (
	"github.com/joeycumines/go-arbiter/internal/behavior"
	"github.com/joeycumines/go-arbiter/internal/condition"
	"github.com/joeycumines/go-arbiter/internal/world"
)

// Strategy decides whether a reaction should fire for its bound unit.
type Strategy interface {
	Name() string
	// CanInterruptSelf permits firing while a unit started by the same kind
	// is running.
	CanInterruptSelf() bool
	// CanInterruptOther permits firing while a unit started by a different
	// kind is running.
	CanInterruptOther() bool
	// ShouldResume asks for the preempted unit to be resumed afterwards.
	ShouldResume() bool
	ShouldTrigger(target behavior.Unit) bool
}

// EnabledNotifier is implemented by strategies that want to know when their
// kind is locked or unlocked.
type EnabledNotifier interface {
	EnabledStateChanged(enabled bool)
}

// Flags holds the interrupt and resume settings shared by strategies.
type Flags struct {
	InterruptSelf  bool
	InterruptOther bool
	Resume         bool
}

func (f Flags) CanInterruptSelf() bool  { return f.InterruptSelf }
func (f Flags) CanInterruptOther() bool { return f.InterruptOther }
func (f Flags) ShouldResume() bool      { return f.Resume }

// Expr fires when its expression holds. The expression sees the world
// blackboard plus "targetRunning" and "targetRunnable" for the bound unit.
// A non-runnable target never fires.
type Expr struct {
	Flags
	StrategyName string
	When         *condition.Bool
	World        *world.Blackboard

	enabled bool
}

// NewExpr returns an expression strategy.
func NewExpr(name string, flags Flags, when *condition.Bool, bb *world.Blackboard) *Expr {
	if bb == nil {
		bb = new(world.Blackboard)
	}
	return &Expr{Flags: flags, StrategyName: name, When: when, World: bb, enabled: true}
}

func (s *Expr) Name() string { return s.StrategyName }

func (s *Expr) ShouldTrigger(target behavior.Unit) bool {
	if target == nil || !target.IsRunnable() {
		return false
	}
	return s.When.Eval(s.World.Env(map[string]any{
		"targetRunning":  target.IsRunning(),
		"targetRunnable": true,
	}))
}

// EnabledStateChanged implements EnabledNotifier.
func (s *Expr) EnabledStateChanged(enabled bool) { s.enabled = enabled }

// Enabled reports the last state delivered through EnabledStateChanged.
func (s *Expr) Enabled() bool { return s.enabled }

// Func is a Strategy backed by a function.
type Func struct {
	Flags
	StrategyName string
	Fn           func(target behavior.Unit) bool
	OnEnabled    func(enabled bool)
}

func (s *Func) Name() string { return s.StrategyName }

func (s *Func) ShouldTrigger(target behavior.Unit) bool {
	return s.Fn != nil && s.Fn(target)
}

// EnabledStateChanged implements EnabledNotifier.
func (s *Func) EnabledStateChanged(enabled bool) {
	if s.OnEnabled != nil {
		s.OnEnabled(enabled)
	}
}

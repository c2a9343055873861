// Package trigger maps reaction trigger kinds to the strategies and units
// that respond to them, and evaluates which reaction, if any, preempts the
// current unit this tick.
//
// Each kind holds an ordered list of (strategy, unit) bindings and a set of
// lock ids. A kind is enabled only while its lock set is empty. Locks are
// added and removed by external requests only.
package trigger

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/joeycumines/go-arbiter/internal/behavior"
)

// DefaultIdempotentLock is the externally controlled lock id that may be
// added and removed repeatedly.
const DefaultIdempotentLock = "sdk"

var (
	// ErrDuplicateLock is returned when a non-idempotent lock id is added
	// to a kind that already holds it.
	ErrDuplicateLock = errors.New("trigger: duplicate lock")
	// ErrLockNotFound is returned when removing a lock a kind does not hold.
	ErrLockNotFound = errors.New("trigger: lock not held")
	// ErrUnknownKind is returned for an empty kind.
	ErrUnknownKind = errors.New("trigger: unknown kind")
)

// Binding pairs a strategy with the unit it starts.
type Binding struct {
	Strategy Strategy
	Target   behavior.ID
}

// Fired describes the reaction selected by Evaluate.
type Fired struct {
	Kind     behavior.TriggerKind
	Strategy Strategy
	Target   behavior.ID
}

type entry struct {
	bindings []Binding
	locks    map[string]struct{}
}

func (e *entry) enabled() bool { return len(e.locks) == 0 }

// Registry holds bindings and locks for every trigger kind.
//
// Registry is not safe for concurrent use.
type Registry struct {
	kinds          []behavior.TriggerKind
	entries        map[behavior.TriggerKind]*entry
	idempotentLock string
	logger         *slog.Logger
}

// NewRegistry returns an empty registry. An empty idempotentLock uses
// DefaultIdempotentLock.
func NewRegistry(idempotentLock string, logger *slog.Logger) *Registry {
	if idempotentLock == "" {
		idempotentLock = DefaultIdempotentLock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries:        make(map[behavior.TriggerKind]*entry),
		idempotentLock: idempotentLock,
		logger:         logger,
	}
}

// IdempotentLock returns the lock id exempt from duplicate checks.
func (r *Registry) IdempotentLock() string { return r.idempotentLock }

func (r *Registry) entry(kind behavior.TriggerKind) *entry {
	e, ok := r.entries[kind]
	if !ok {
		e = &entry{locks: make(map[string]struct{})}
		r.entries[kind] = e
		r.kinds = append(r.kinds, kind)
	}
	return e
}

// Declare registers kind without bindings, fixing its evaluation order.
func (r *Registry) Declare(kind behavior.TriggerKind) error {
	if kind == behavior.NoTrigger {
		return ErrUnknownKind
	}
	r.entry(kind)
	return nil
}

// Bind appends a binding for kind. Kinds are evaluated in the order they
// were first declared or bound, and bindings in the order they were bound.
func (r *Registry) Bind(kind behavior.TriggerKind, s Strategy, target behavior.ID) error {
	if kind == behavior.NoTrigger {
		return ErrUnknownKind
	}
	if s == nil {
		return fmt.Errorf("trigger %s: nil strategy for %s", kind, target)
	}
	if target.IsNone() {
		return fmt.Errorf("trigger %s: %w: empty target", kind, behavior.ErrUnknownUnit)
	}
	e := r.entry(kind)
	e.bindings = append(e.bindings, Binding{Strategy: s, Target: target})
	return nil
}

// Kinds returns every known kind in evaluation order.
func (r *Registry) Kinds() []behavior.TriggerKind { return slices.Clone(r.kinds) }

// Bindings returns the bindings of kind.
func (r *Registry) Bindings(kind behavior.TriggerKind) []Binding {
	if e, ok := r.entries[kind]; ok {
		return slices.Clone(e.bindings)
	}
	return nil
}

// IsEnabled reports whether kind currently has no locks.
func (r *Registry) IsEnabled(kind behavior.TriggerKind) bool {
	e, ok := r.entries[kind]
	return !ok || e.enabled()
}

// Locks returns the lock ids held on kind, sorted.
func (r *Registry) Locks(kind behavior.TriggerKind) []string {
	e, ok := r.entries[kind]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(e.locks))
}

// AddLock disables kind under lockID. Adding a lock id the kind already
// holds is a conflict, logged and rejected, unless it is the idempotent
// lock.
func (r *Registry) AddLock(kind behavior.TriggerKind, lockID string) error {
	if kind == behavior.NoTrigger {
		return ErrUnknownKind
	}
	e := r.entry(kind)
	if _, held := e.locks[lockID]; held {
		if lockID == r.idempotentLock {
			return nil
		}
		r.logger.Warn("[trigger] duplicate lock", "kind", kind, "lock", lockID)
		return fmt.Errorf("%w: %s on %s", ErrDuplicateLock, lockID, kind)
	}
	wasEnabled := e.enabled()
	e.locks[lockID] = struct{}{}
	if wasEnabled {
		r.notify(kind, e, false)
	}
	return nil
}

// RemoveLock removes lockID from kind.
func (r *Registry) RemoveLock(kind behavior.TriggerKind, lockID string) error {
	e, ok := r.entries[kind]
	if ok {
		if _, held := e.locks[lockID]; held {
			delete(e.locks, lockID)
			if e.enabled() {
				r.notify(kind, e, true)
			}
			return nil
		}
	}
	if lockID == r.idempotentLock {
		return nil
	}
	r.logger.Warn("[trigger] removing lock not held", "kind", kind, "lock", lockID)
	return fmt.Errorf("%w: %s on %s", ErrLockNotFound, lockID, kind)
}

// DisableWithLock adds lockID to every kind in kinds. Failures are joined;
// kinds that accepted the lock keep it.
func (r *Registry) DisableWithLock(lockID string, kinds []behavior.TriggerKind) error {
	var errs []error
	for _, k := range kinds {
		errs = append(errs, r.AddLock(k, lockID))
	}
	return errors.Join(errs...)
}

// RemoveLockEverywhere removes lockID from every kind holding it and
// returns those kinds.
func (r *Registry) RemoveLockEverywhere(lockID string) []behavior.TriggerKind {
	var removed []behavior.TriggerKind
	for _, k := range r.kinds {
		if _, held := r.entries[k].locks[lockID]; held {
			_ = r.RemoveLock(k, lockID)
			removed = append(removed, k)
		}
	}
	return removed
}

func (r *Registry) notify(kind behavior.TriggerKind, e *entry, enabled bool) {
	r.logger.Debug("[trigger] enabled state changed", "kind", kind, "enabled", enabled)
	for _, b := range e.bindings {
		if n, ok := b.Strategy.(EnabledNotifier); ok {
			n.EnabledStateChanged(enabled)
		}
	}
}

// Evaluate walks enabled kinds and their bindings in registration order and
// returns the first binding whose strategy fires. running is the trigger
// kind of the current unit, or behavior.NoTrigger.
//
// While a reaction is running, a binding of the same kind is considered
// only if its strategy can interrupt itself, and a binding of another kind
// only if it can interrupt other reactions. Matches after the first are
// logged as conflicts and discarded.
func (r *Registry) Evaluate(running behavior.TriggerKind, units *behavior.Registry) (Fired, bool) {
	var fired Fired
	found := false
	for _, kind := range r.kinds {
		e := r.entries[kind]
		if !e.enabled() {
			continue
		}
		for _, b := range e.bindings {
			if running != behavior.NoTrigger {
				if kind == running && !b.Strategy.CanInterruptSelf() {
					continue
				}
				if kind != running && !b.Strategy.CanInterruptOther() {
					continue
				}
			}
			target, ok := units.Get(b.Target)
			if !ok {
				r.logger.Warn("[trigger] binding targets unknown unit", "kind", kind, "unit", b.Target)
				continue
			}
			if !b.Strategy.ShouldTrigger(target) {
				continue
			}
			if found {
				r.logger.Warn("[trigger] conflicting reactions",
					"fired", fired.Kind,
					"firedUnit", fired.Target,
					"discarded", kind,
					"discardedUnit", b.Target,
					"strategy", b.Strategy.Name())
				continue
			}
			fired = Fired{Kind: kind, Strategy: b.Strategy, Target: b.Target}
			found = true
		}
	}
	return fired, found
}

// Map returns, for every kind, the target units in binding order.
func (r *Registry) Map() map[behavior.TriggerKind][]behavior.ID {
	m := make(map[behavior.TriggerKind][]behavior.ID, len(r.kinds))
	for _, k := range r.kinds {
		var ids []behavior.ID
		for _, b := range r.entries[k].bindings {
			ids = append(ids, b.Target)
		}
		m[k] = ids
	}
	return m
}

package behavior

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrDuplicateUnit is returned when a unit id is registered twice.
	ErrDuplicateUnit = errors.New("behavior: duplicate unit id")
	// ErrUnknownUnit is returned for lookups of unregistered ids.
	ErrUnknownUnit = errors.New("behavior: unknown unit id")
	// ErrUnknownGroup is returned for group names never defined.
	ErrUnknownGroup = errors.New("behavior: unknown group")
	// ErrTooManyGroups is returned when more than MaxGroups are defined.
	ErrTooManyGroups = errors.New("behavior: too many groups")
)

// Registry exclusively owns every Unit. It also owns the group id↔name
// table, so group names are resolved per registry rather than globally.
//
// Registry is not safe for concurrent mutation; it is populated once at
// startup and read afterwards.
type Registry struct {
	units     map[ID]Unit
	order     []ID
	groups    []string
	groupByID map[string]Group
	logger    *slog.Logger
}

// NewRegistry returns an empty registry logging to logger (slog.Default if nil).
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		units:     make(map[ID]Unit),
		groupByID: make(map[string]Group),
		logger:    logger,
	}
}

// DefineGroup allocates a group bit for name, returning the existing bit if
// name is already defined.
func (r *Registry) DefineGroup(name string) (Group, error) {
	if g, ok := r.groupByID[name]; ok {
		return g, nil
	}
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrUnknownGroup)
	}
	if len(r.groups) >= MaxGroups {
		return 0, fmt.Errorf("%w: %q", ErrTooManyGroups, name)
	}
	g := Group(len(r.groups))
	r.groups = append(r.groups, name)
	r.groupByID[name] = g
	return g, nil
}

// Group resolves a group name.
func (r *Registry) Group(name string) (Group, bool) {
	g, ok := r.groupByID[name]
	return g, ok
}

// GroupName returns the name of g, or "" if g was never allocated.
func (r *Registry) GroupName(g Group) string {
	if int(g) >= len(r.groups) {
		return ""
	}
	return r.groups[g]
}

// GroupSet resolves names to a set. Every name must already be defined.
func (r *Registry) GroupSet(names ...string) (GroupSet, error) {
	var s GroupSet
	for _, name := range names {
		g, ok := r.groupByID[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownGroup, name)
		}
		s = s.With(g)
	}
	return s, nil
}

// GroupNames returns the names of the groups in s, in bit order.
func (r *Registry) GroupNames(s GroupSet) []string {
	var names []string
	for _, g := range s.Groups() {
		if name := r.GroupName(g); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Add registers u. The registry takes ownership.
func (r *Registry) Add(u Unit) error {
	id := u.ID()
	if id.IsNone() {
		return fmt.Errorf("%w: empty id", ErrUnknownUnit)
	}
	if _, ok := r.units[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateUnit, id)
	}
	r.units[id] = u
	r.order = append(r.order, id)
	return nil
}

// Get returns the unit registered as id. None is never registered.
func (r *Registry) Get(id ID) (Unit, bool) {
	u, ok := r.units[id]
	return u, ok
}

// MustGet is like Get but panics for unknown ids.
func (r *Registry) MustGet(id ID) Unit {
	u, ok := r.units[id]
	if !ok {
		panic(fmt.Errorf("%w: %s", ErrUnknownUnit, id))
	}
	return u
}

// Has reports whether id is registered.
func (r *Registry) Has(id ID) bool {
	_, ok := r.units[id]
	return ok
}

// ClassOf returns the class of id, or "" for None and unknown ids.
func (r *Registry) ClassOf(id ID) Class {
	if u, ok := r.units[id]; ok {
		return u.Class()
	}
	return ""
}

// IDs returns every registered id in registration order.
func (r *Registry) IDs() []ID {
	return append([]ID(nil), r.order...)
}

// Len returns the number of registered units.
func (r *Registry) Len() int { return len(r.order) }

// Running returns the ids of every unit reporting IsRunning, in
// registration order. More than one is a logic error, logged as a
// runnability violation.
func (r *Registry) Running() []ID {
	var ids []ID
	for _, id := range r.order {
		if r.units[id].IsRunning() {
			ids = append(ids, id)
		}
	}
	if len(ids) > 1 {
		r.logger.Warn("[behavior] multiple units running",
			"units", joinIDs(ids))
	}
	return ids
}

// Close stops every running unit and empties the registry.
func (r *Registry) Close() {
	for _, id := range r.order {
		if u := r.units[id]; u.IsRunning() {
			u.Stop()
		}
	}
	r.units = make(map[ID]Unit)
	r.order = nil
}

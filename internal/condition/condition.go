package condition

import (
	"fmt"
	"log/slog"

	pabtpkg "github.com/joeycumines/go-pabt"

	"github.com/joeycumines/go-arbiter/internal/world"
)

// Keyed implements pabtpkg.Condition over a single world key. The expression
// sees the key's current value as "value".
type Keyed struct {
	key  string
	expr *Bool
}

var _ pabtpkg.Condition = (*Keyed)(nil)

// NewKeyed compiles a condition on the world key.
//
// Expression syntax follows expr-lang:
//   - Comparisons: value == 10, value > 5, value != nil
//   - Field access: value.x, value.name
//   - Boolean logic: value.x > 0 && value.y < 100
func NewKeyed(key, expression string) (*Keyed, error) {
	if key == "" {
		return nil, fmt.Errorf("condition: empty key for %q", expression)
	}
	b, err := NewBool(expression)
	if err != nil {
		return nil, err
	}
	return &Keyed{key: key, expr: b}, nil
}

// Key implements pabtpkg.Variable.
func (c *Keyed) Key() any { return c.key }

// Match implements pabtpkg.Condition.
func (c *Keyed) Match(value any) bool {
	if c == nil {
		return false
	}
	return c.expr.Eval(map[string]any{"value": value})
}

// LastError returns the most recent evaluation error.
func (c *Keyed) LastError() error { return c.expr.LastError() }

// Source returns the expression text.
func (c *Keyed) Source() string { return c.expr.Source() }

// Func implements pabtpkg.Condition using a Go function.
type Func struct {
	key     any
	matchFn func(any) bool
}

var _ pabtpkg.Condition = (*Func)(nil)

// NewFunc creates a new function-based condition.
func NewFunc(key any, matchFn func(any) bool) *Func {
	return &Func{key: key, matchFn: matchFn}
}

// Key implements pabtpkg.Variable.
func (c *Func) Key() any { return c.key }

// Match implements pabtpkg.Condition.
func (c *Func) Match(value any) bool {
	if c == nil || c.matchFn == nil {
		return false
	}
	return c.matchFn(value)
}

// MatchAll reports whether every condition matches the current value of its
// key on the blackboard. Conditions whose key is not a string never match.
func MatchAll(conds []pabtpkg.Condition, bb *world.Blackboard) bool {
	for _, c := range conds {
		key, ok := c.Key().(string)
		if !ok {
			slog.Warn("[condition] non-string condition key", "key", c.Key())
			return false
		}
		if !c.Match(bb.Get(key)) {
			return false
		}
	}
	return true
}

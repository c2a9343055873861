// Package condition compiles and evaluates the expressions that drive
// data-defined units, activity strategies and reaction strategies.
//
// Expressions use expr-lang syntax (github.com/expr-lang/expr). They are
// compiled once when definitions are built, so syntax errors surface as
// configuration errors at startup, and evaluated against a map environment
// built from the world blackboard each tick. Variables missing from the
// environment evaluate to nil.
package condition

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

type resultKind string

const (
	kindBool  resultKind = "bool"
	kindFloat resultKind = "float"
)

func compile(source string, kind resultKind) (*vm.Program, error) {
	if source == "" {
		return nil, fmt.Errorf("condition: empty %s expression", kind)
	}
	key := string(kind) + "\x00" + source
	if program, ok := programs.Get(key); ok {
		return program, nil
	}
	opts := []expr.Option{expr.AllowUndefinedVariables()}
	switch kind {
	case kindBool:
		opts = append(opts, expr.AsBool())
	case kindFloat:
		opts = append(opts, expr.AsFloat64())
	}
	program, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("condition: compile %q: %w", source, err)
	}
	programs.Put(key, program)
	return program, nil
}

// errState tracks the most recent evaluation error, so callers can tell a
// legitimate false (or zero) from a failure.
type errState struct {
	mu      sync.Mutex
	lastErr error
}

func (s *errState) set(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// LastError returns the error from the most recent evaluation, or nil.
func (s *errState) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Bool is a compiled boolean expression.
type Bool struct {
	errState
	source  string
	program *vm.Program
}

// NewBool compiles source as a boolean expression.
func NewBool(source string) (*Bool, error) {
	program, err := compile(source, kindBool)
	if err != nil {
		return nil, err
	}
	return &Bool{source: source, program: program}, nil
}

// MustBool is like NewBool but panics on error. For tests and literals.
func MustBool(source string) *Bool {
	b, err := NewBool(source)
	if err != nil {
		panic(err)
	}
	return b
}

// Source returns the expression text.
func (b *Bool) Source() string { return b.source }

// Eval runs the expression against env. Evaluation errors are logged and
// reported as false.
func (b *Bool) Eval(env map[string]any) bool {
	if b == nil || b.program == nil {
		return false
	}
	result, err := expr.Run(b.program, env)
	if err != nil {
		b.set(fmt.Errorf("expression evaluation failed: %w", err))
		slog.Error("[condition] bool evaluation error",
			"expression", b.source,
			"error", err)
		return false
	}
	v, ok := result.(bool)
	if !ok {
		b.set(fmt.Errorf("expression returned non-boolean result: %T", result))
		slog.Warn("[condition] non-boolean result",
			"expression", b.source,
			"resultType", fmt.Sprintf("%T", result))
		return false
	}
	b.set(nil)
	return v
}

// Float is a compiled numeric expression.
type Float struct {
	errState
	source  string
	program *vm.Program
}

// NewFloat compiles source as a numeric expression.
func NewFloat(source string) (*Float, error) {
	program, err := compile(source, kindFloat)
	if err != nil {
		return nil, err
	}
	return &Float{source: source, program: program}, nil
}

// MustFloat is like NewFloat but panics on error.
func MustFloat(source string) *Float {
	f, err := NewFloat(source)
	if err != nil {
		panic(err)
	}
	return f
}

// Source returns the expression text.
func (f *Float) Source() string { return f.source }

// Eval runs the expression against env. Evaluation errors are logged and
// reported as zero.
func (f *Float) Eval(env map[string]any) float64 {
	if f == nil || f.program == nil {
		return 0
	}
	result, err := expr.Run(f.program, env)
	if err != nil {
		f.set(fmt.Errorf("expression evaluation failed: %w", err))
		slog.Error("[condition] float evaluation error",
			"expression", f.source,
			"error", err)
		return 0
	}
	switch v := result.(type) {
	case float64:
		f.set(nil)
		return v
	case int:
		f.set(nil)
		return float64(v)
	default:
		f.set(fmt.Errorf("expression returned non-numeric result: %T", result))
		return 0
	}
}

package trigger

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-arbiter/internal/behavior"
	"github.com/joeycumines/go-arbiter/internal/behavior/behaviortest"
)

const (
	pickedUp behavior.TriggerKind = "RobotPickedUp"
	cliff    behavior.TriggerKind = "CliffDetected"
)

func always(name string, flags Flags) *Func {
	return &Func{Flags: flags, StrategyName: name, Fn: func(behavior.Unit) bool { return true }}
}

func never(name string, flags Flags) *Func {
	return &Func{Flags: flags, StrategyName: name, Fn: func(behavior.Unit) bool { return false }}
}

func newUnits(t *testing.T, ids ...behavior.ID) *behavior.Registry {
	t.Helper()
	clock := behavior.NewManualClock(time.Unix(0, 0))
	reg := behavior.NewRegistry(nil)
	for _, id := range ids {
		require.NoError(t, reg.Add(behaviortest.New(id, 0, clock)))
	}
	return reg
}

func TestEvaluate_FirstMatchWinsAndConflictsLogged(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry("", slog.New(slog.NewTextHandler(&buf, nil)))
	units := newUnits(t, "ReactToPickup", "ReactToCliff", "Other")

	require.NoError(t, r.Bind(pickedUp, never("p0", Flags{}), "Other"))
	require.NoError(t, r.Bind(pickedUp, always("p1", Flags{Resume: true}), "ReactToPickup"))
	require.NoError(t, r.Bind(cliff, always("c1", Flags{}), "ReactToCliff"))

	fired, ok := r.Evaluate(behavior.NoTrigger, units)
	require.True(t, ok)
	assert.Equal(t, pickedUp, fired.Kind)
	assert.Equal(t, behavior.ID("ReactToPickup"), fired.Target)
	assert.True(t, fired.Strategy.ShouldResume())
	assert.Contains(t, buf.String(), "conflicting reactions")
	assert.Contains(t, buf.String(), "ReactToCliff")
}

func TestEvaluate_InterruptPrecedence(t *testing.T) {
	units := newUnits(t, "ReactToPickup", "ReactToCliff")

	t.Run("other kind forbidden", func(t *testing.T) {
		r := NewRegistry("", nil)
		require.NoError(t, r.Bind(cliff, always("c", Flags{InterruptSelf: true}), "ReactToCliff"))
		_, ok := r.Evaluate(pickedUp, units)
		assert.False(t, ok)
		_, ok = r.Evaluate(behavior.NoTrigger, units)
		assert.True(t, ok)
	})

	t.Run("other kind allowed", func(t *testing.T) {
		r := NewRegistry("", nil)
		require.NoError(t, r.Bind(cliff, always("c", Flags{InterruptOther: true}), "ReactToCliff"))
		fired, ok := r.Evaluate(pickedUp, units)
		assert.True(t, ok)
		assert.Equal(t, cliff, fired.Kind)
	})

	t.Run("self forbidden", func(t *testing.T) {
		r := NewRegistry("", nil)
		require.NoError(t, r.Bind(pickedUp, always("p", Flags{InterruptOther: true}), "ReactToPickup"))
		_, ok := r.Evaluate(pickedUp, units)
		assert.False(t, ok)
	})

	t.Run("self allowed", func(t *testing.T) {
		r := NewRegistry("", nil)
		require.NoError(t, r.Bind(pickedUp, always("p", Flags{InterruptSelf: true}), "ReactToPickup"))
		_, ok := r.Evaluate(pickedUp, units)
		assert.True(t, ok)
	})
}

func TestEvaluate_UnknownTargetSkipped(t *testing.T) {
	r := NewRegistry("", nil)
	units := newUnits(t, "Real")
	require.NoError(t, r.Bind(cliff, always("ghost", Flags{}), "Ghost"))
	require.NoError(t, r.Bind(cliff, always("real", Flags{}), "Real"))
	fired, ok := r.Evaluate(behavior.NoTrigger, units)
	require.True(t, ok)
	assert.Equal(t, behavior.ID("Real"), fired.Target)
}

func TestLocks_SuppressAndRestore(t *testing.T) {
	r := NewRegistry("", nil)
	units := newUnits(t, "ReactToCliff")

	var states []bool
	s := always("c", Flags{})
	s.OnEnabled = func(enabled bool) { states = append(states, enabled) }
	require.NoError(t, r.Bind(cliff, s, "ReactToCliff"))

	require.NoError(t, r.AddLock(cliff, "L"))
	assert.False(t, r.IsEnabled(cliff))
	_, ok := r.Evaluate(behavior.NoTrigger, units)
	assert.False(t, ok)

	require.NoError(t, r.AddLock(cliff, "M"))
	assert.Equal(t, []string{"L", "M"}, r.Locks(cliff))

	require.NoError(t, r.RemoveLock(cliff, "L"))
	assert.False(t, r.IsEnabled(cliff))
	require.NoError(t, r.RemoveLock(cliff, "M"))
	assert.True(t, r.IsEnabled(cliff))

	_, ok = r.Evaluate(behavior.NoTrigger, units)
	assert.True(t, ok)
	assert.Equal(t, []bool{false, true}, states)
}

func TestLocks_DuplicateAndIdempotent(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry("", slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, r.AddLock(cliff, "game"))
	assert.ErrorIs(t, r.AddLock(cliff, "game"), ErrDuplicateLock)
	assert.Contains(t, buf.String(), "duplicate lock")

	require.NoError(t, r.AddLock(cliff, DefaultIdempotentLock))
	require.NoError(t, r.AddLock(cliff, DefaultIdempotentLock))
	require.NoError(t, r.RemoveLock(cliff, DefaultIdempotentLock))
	require.NoError(t, r.RemoveLock(cliff, DefaultIdempotentLock))

	assert.ErrorIs(t, r.RemoveLock(cliff, "nope"), ErrLockNotFound)
	assert.ErrorIs(t, r.RemoveLock("Unknown", "nope"), ErrLockNotFound)
	assert.ErrorIs(t, r.AddLock(behavior.NoTrigger, "x"), ErrUnknownKind)

	custom := NewRegistry("always-on", nil)
	require.NoError(t, custom.AddLock(cliff, "always-on"))
	require.NoError(t, custom.AddLock(cliff, "always-on"))
	assert.Equal(t, "always-on", custom.IdempotentLock())
}

func TestDisableWithLockAndRemoveEverywhere(t *testing.T) {
	r := NewRegistry("", nil)
	require.NoError(t, r.Declare(pickedUp))
	require.NoError(t, r.Declare(cliff))

	require.NoError(t, r.DisableWithLock("ui", []behavior.TriggerKind{pickedUp, cliff}))
	assert.False(t, r.IsEnabled(pickedUp))
	assert.False(t, r.IsEnabled(cliff))

	err := r.DisableWithLock("ui", []behavior.TriggerKind{cliff})
	assert.ErrorIs(t, err, ErrDuplicateLock)

	removed := r.RemoveLockEverywhere("ui")
	assert.Equal(t, []behavior.TriggerKind{pickedUp, cliff}, removed)
	assert.True(t, r.IsEnabled(pickedUp))
	assert.True(t, r.IsEnabled(cliff))
	assert.Empty(t, r.RemoveLockEverywhere("ui"))
}

func TestBindErrorsAndMap(t *testing.T) {
	r := NewRegistry("", nil)
	assert.ErrorIs(t, r.Bind(behavior.NoTrigger, always("x", Flags{}), "A"), ErrUnknownKind)
	assert.Error(t, r.Bind(cliff, nil, "A"))
	assert.ErrorIs(t, r.Bind(cliff, always("x", Flags{}), behavior.None), behavior.ErrUnknownUnit)

	require.NoError(t, r.Bind(cliff, always("a", Flags{}), "A"))
	require.NoError(t, r.Bind(cliff, always("b", Flags{}), "B"))
	require.NoError(t, r.Bind(pickedUp, always("c", Flags{}), "C"))
	assert.Equal(t, map[behavior.TriggerKind][]behavior.ID{
		cliff:    {"A", "B"},
		pickedUp: {"C"},
	}, r.Map())
	assert.Equal(t, []behavior.TriggerKind{cliff, pickedUp}, r.Kinds())
	assert.Len(t, r.Bindings(cliff), 2)
	assert.Nil(t, r.Bindings("Unknown"))
	assert.True(t, r.IsEnabled("Unknown"))
}

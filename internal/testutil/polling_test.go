package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoll_BecomesTrue(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), func() bool {
		calls++
		return calls >= 3
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestPoll_Timeout(t *testing.T) {
	err := Poll(context.Background(), func() bool { return false }, 20*time.Millisecond, time.Millisecond)
	require.ErrorContains(t, err, "timeout waiting for bool state")
}

func TestPoll_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checked := make(chan struct{})
	go func() {
		<-checked
		cancel()
	}()

	var once bool
	err := Poll(ctx, func() bool {
		if !once {
			once = true
			close(checked)
		}
		return false
	}, 5*time.Second, time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitForState(t *testing.T) {
	var n uint64
	got, err := WaitForState(context.Background(), func() uint64 {
		n++
		return n
	}, func(v uint64) bool { return v >= 4 }, 5*time.Second, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, uint64(4), got)
}

func TestWaitForState_TimeoutReturnsZeroValue(t *testing.T) {
	got, err := WaitForState(context.Background(),
		func() string { return "Explore" },
		func(s string) bool { return s == "GoToFace" },
		20*time.Millisecond, time.Millisecond)
	require.Error(t, err)
	require.Empty(t, got)
}

package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-arbiter/internal/behavior"
)

func transition(seq uint64, from, to behavior.ID, reason Reason) Transition {
	return Transition{
		Seq:     seq,
		Time:    time.Unix(100+int64(seq), 0),
		FromID:  from,
		ToID:    to,
		ToClass: "Test",
		Reason:  reason,
	}
}

func TestRing(t *testing.T) {
	r := NewRing(3)
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, r.Record(transition(i, "A", "B", ReasonScored)))
	}
	assert.Equal(t, 3, r.Len())
	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, uint64(3), all[0].Seq)
	assert.Equal(t, uint64(5), all[2].Seq)

	recent := r.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(4), recent[0].Seq)

	assert.Len(t, r.Recent(0), 3)

	r.Clear()
	assert.Equal(t, 0, r.Len())
}

func TestRing_Search(t *testing.T) {
	r := NewRing(0)
	_ = r.Record(transition(1, "Idle", "PounceOnMotion", ReasonScored))
	_ = r.Record(transition(2, "PounceOnMotion", "ReactToCliff", ReasonTrigger))
	_ = r.Record(transition(3, "ReactToCliff", "PounceOnMotion", ReasonResume))

	assert.Len(t, r.Search("pounce"), 3)
	assert.Len(t, r.Search("TRIGGER"), 1)
	assert.Empty(t, r.Search("nothing"))
}

func TestMulti(t *testing.T) {
	a, b := NewRing(0), NewRing(0)
	boom := errors.New("boom")
	m := Multi{a, nil, SinkFunc(func(Transition) error { return boom }), b}
	err := m.Record(transition(1, "A", "B", ReasonScored))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestLogSink(t *testing.T) {
	h := NewLogHandler(10, slog.LevelDebug)
	s := LogSink{Logger: slog.New(h)}
	require.NoError(t, s.Record(transition(7, "A", "B", ReasonUI)))
	logs := h.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "[telemetry] transition", logs[0].Message)
	assert.Equal(t, "7", logs[0].Attrs["seq"])
	assert.Equal(t, "ui", logs[0].Attrs["reason"])
}

func TestLogHandler(t *testing.T) {
	h := NewLogHandler(2, slog.LevelInfo)
	logger := slog.New(h)

	logger.Debug("dropped")
	logger.Info("first", "k", 1)
	logger.With("unit", "A").WithGroup("g").Warn("second", "x", "y")
	logger.Error("third")

	logs := h.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, "second", logs[0].Message)
	assert.Equal(t, "A", logs[0].Attrs["unit"])
	assert.Equal(t, "y", logs[0].Attrs["g.x"])
	assert.Equal(t, slog.LevelError, logs[1].Level)

	assert.Len(t, h.Search("unit"), 1)
	assert.Len(t, h.Recent(1), 1)

	h.Clear()
	assert.Empty(t, h.Logs())
}

func TestSQLiteSink_InMemory(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	assert.NotEmpty(t, s.Session())
	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, s.Record(transition(i, "A", behavior.ID("B"), ReasonTrigger)))
	}

	ctx := context.Background()
	got, err := s.Recent(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].Seq)
	assert.Equal(t, uint64(4), got[1].Seq)
	assert.Equal(t, s.Session(), got[0].Session)
	assert.Equal(t, ReasonTrigger, got[0].Reason)
	assert.True(t, got[1].Time.Equal(time.Unix(104, 0)))

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{s.Session()}, sessions)
}

func TestSQLiteSink_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "telemetry.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(transition(1, behavior.None, "A", ReasonScored)))
	first := s.Session()
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.NotEqual(t, first, s.Session())

	got, err := s.Recent(context.Background(), first, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, behavior.None, got[0].FromID)
	assert.Equal(t, behavior.ID("A"), got[0].ToID)
}

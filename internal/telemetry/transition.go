// Package telemetry records one Transition per scheduler switch and fans
// records out to sinks: an in-memory ring, structured logs and an optional
// SQLite database.
package telemetry

import (
	"errors"
	"log/slog"
	"time"

	"github.com/joeycumines/go-arbiter/internal/behavior"
)

// Reason classifies why a transition happened.
type Reason string

const (
	ReasonScored          Reason = "scored"
	ReasonTrigger         Reason = "trigger"
	ReasonResume          Reason = "resume"
	ReasonVoice           Reason = "voice"
	ReasonUI              Reason = "ui"
	ReasonFinished        Reason = "finished"
	ReasonActivationError Reason = "activation-failed"
	ReasonEndImmediately  Reason = "end-immediately"
	ReasonLocked          Reason = "locked"
	ReasonActivity        Reason = "activity"
)

// Transition describes a change of the active unit.
type Transition struct {
	Session   string
	Seq       uint64
	Time      time.Time
	FromID    behavior.ID
	FromClass behavior.Class
	ToID      behavior.ID
	ToClass   behavior.Class
	Trigger   behavior.TriggerKind
	Reason    Reason
}

// Sink consumes transitions. Implementations must not block the caller for
// long; the scheduler records synchronously.
type Sink interface {
	Record(t Transition) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Transition) error

func (f SinkFunc) Record(t Transition) error { return f(t) }

// Multi records to every sink, joining their errors.
type Multi []Sink

func (m Multi) Record(t Transition) error {
	var errs []error
	for _, s := range m {
		if s != nil {
			errs = append(errs, s.Record(t))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes each transition as an info record.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Record(t Transition) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("[telemetry] transition",
		"seq", t.Seq,
		"from", t.FromID,
		"fromClass", t.FromClass,
		"to", t.ToID,
		"toClass", t.ToClass,
		"trigger", t.Trigger,
		"reason", t.Reason)
	return nil
}

// Package sink defines the contract toward the external time-series
// store that receives measurement samples. The store itself (an
// InfluxDB client, in the agent this package was distilled from) is
// explicitly out of scope for this module; this package specifies only
// the interface the core consumes, plus a trivial logging adapter for
// use as a default and as a test double.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrUnreachable is the one connectivity-problem error kind a Sink may
// report; any other error from Write is treated as fatal to the agent
// cycle, per the core's no-retry error propagation policy.
var ErrUnreachable = errors.New("sink: store unreachable")

// Record is a labelled, timestamped mapping of field name to value, the
// shape every Sink accepts.
type Record struct {
	Measurement string
	Timestamp   time.Time
	Fields      map[string]float64
}

// Sink accepts measurement records for best-effort persistence.
type Sink interface {
	Write(ctx context.Context, r Record) error
}

// SinkError wraps a Sink failure, distinguishing connectivity problems
// (Unreachable, wrapping ErrUnreachable) from anything else (fatal).
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink: %v", e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Unreachable reports whether err indicates a connectivity problem the
// caller might reasonably retry, as opposed to a fatal sink error.
func Unreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// LoggingSink logs records through an injected logger and never fails.
// It is the default sink when no richer store is configured, and stands
// in for a real store in tests, the way nkt.MockSuperK stands in for a
// real laser module.
type LoggingSink struct {
	Logger *log.Logger
}

// NewLoggingSink wraps logger, falling back to log.Default() if nil.
func NewLoggingSink(logger *log.Logger) *LoggingSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingSink{Logger: logger}
}

// Write logs r and always succeeds.
func (s *LoggingSink) Write(ctx context.Context, r Record) error {
	s.Logger.Printf("sample measurement=%s timestamp=%s fields=%v",
		r.Measurement, r.Timestamp.Format(time.RFC3339Nano), r.Fields)
	return nil
}

// Package diagnostics implements the error kinds and the diagnostics sink
// described in spec §7: candidate-level failures are silent and only shrink
// the caller's working set, decision-point failures are logged through a
// Sink, and setup-level failures are returned to the caller as an *Error.
package diagnostics

import (
	"errors"
	"fmt"
	"log"
	"os"
)

// Code classifies an *Error the way busoc/assist's err.go classifies
// process-exit codes, extended with the scheduler-specific kinds of spec §7.
type Code int

const (
	// GenericCode is used for errors that do not fit a more specific kind.
	GenericCode Code = 5000 + iota
	// InfeasibleScan marks a candidate that failed a §4.5 construction step.
	// Recoverable: the caller drops the candidate and continues.
	InfeasibleScan
	// EmptySubcon marks a decision point with no surviving candidate.
	EmptySubcon
	// NoStationsLeft marks a candidate that lost stations below its
	// required minimum. Fatal to that one scan, never to the run.
	NoStationsLeft
	// NumericSingularity marks a rigorous-update failure (azimuth
	// oscillation, NaN). The affected station is dropped, the run continues.
	NumericSingularity
	// ConfigInconsistency marks a fatal setup-time error (e.g. a dangling
	// source id, all-zero weights, non-positive session duration). Raised
	// only at setup, never from inside the scheduling loop.
	ConfigInconsistency
	// EventClockSkew marks an event whose time falls outside the session
	// window. Treated as a no-op; surfaced as a warning, not an abort.
	EventClockSkew
)

func (c Code) String() string {
	switch c {
	case InfeasibleScan:
		return "infeasible scan"
	case EmptySubcon:
		return "empty subcon"
	case NoStationsLeft:
		return "no stations left"
	case NumericSingularity:
		return "numeric singularity"
	case ConfigInconsistency:
		return "config inconsistency"
	case EventClockSkew:
		return "event clock skew"
	default:
		return "generic error"
	}
}

// Error wraps a Cause with a Code, mirroring busoc/assist's *Error type.
type Error struct {
	Cause error
	Code  Code
}

func (e *Error) Error() string {
	if e == nil || e.Cause == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(code Code, format string, args ...interface{}) error {
	return &Error{Cause: fmt.Errorf(format, args...), Code: code}
}

// Infeasible builds an InfeasibleScan error.
func Infeasible(format string, args ...interface{}) error {
	return New(InfeasibleScan, format, args...)
}

// NoStations builds a NoStationsLeft error.
func NoStations(format string, args ...interface{}) error {
	return New(NoStationsLeft, format, args...)
}

// ConfigError builds a ConfigInconsistency error.
func ConfigError(format string, args ...interface{}) error {
	return New(ConfigInconsistency, format, args...)
}

// CodeOf extracts the Code of err, or GenericCode if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return GenericCode
}

// Is reports whether err (or anything it wraps) carries the given Code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// Sink receives decision-point diagnostics: dropped candidates, skipped
// cadence ticks, clock-skew warnings. It never receives setup-level
// failures, those are returned directly to the caller.
type Sink interface {
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
}

// LogSink is the default Sink, a thin wrapper around the standard library
// logger, the same way busoc/assist routes every diagnostic through
// log.Printf with a program-scoped prefix.
type LogSink struct {
	log *log.Logger
}

// NewLogSink builds a LogSink writing to os.Stderr with the given prefix,
// mirroring log.SetPrefix/log.SetOutput(os.Stderr) in busoc/assist/main.go.
func NewLogSink(prefix string) *LogSink {
	return &LogSink{log: log.New(os.Stderr, prefix, log.LstdFlags)}
}

func (s *LogSink) Warnf(format string, args ...interface{}) {
	s.log.Printf("warning: "+format, args...)
}

func (s *LogSink) Infof(format string, args ...interface{}) {
	s.log.Printf(format, args...)
}

// Discard is a Sink that drops every message; useful in tests.
type Discard struct{}

func (Discard) Warnf(string, ...interface{}) {}
func (Discard) Infof(string, ...interface{}) {}

// Package report persists run records so that finished processes can be
// listed and inspected after the fact.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/childproc"
)

// Kind identifies how a run was started.
type Kind string

const (
	// Run is a command started directly from an argv.
	Run Kind = "run"
	// Shell is a command line run through the shell.
	Shell Kind = "shell"
)

// Outcome names how a run ended.
type Outcome string

const (
	Success   Outcome = "success"
	ExitCode  Outcome = "exit_code"
	Signal    Outcome = "signal"
	Spawn     Outcome = "spawn"
	MaxBuffer Outcome = "max_buffer"
	Timeout   Outcome = "timeout"
)

// ErrNotFound is returned by Load for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Store persists and retrieves run records.
type Store interface {
	Save(rec *Record) error
	Load(runID string) (*Record, error)
	// List returns up to limit records, most recent first.
	List(limit int) ([]*Record, error)
}

// Record is the persisted form of one finished run.
type Record struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Command []string  `json:"command"`
	Dir     string    `json:"dir,omitempty"`
	PID     int       `json:"pid"`
	Started time.Time `json:"started"`

	DurationMS int64   `json:"duration_ms"`
	Outcome    Outcome `json:"outcome"`
	ExitCode   int     `json:"exit_code"`
	Signal     string  `json:"signal,omitempty"`
	Killed     bool    `json:"killed,omitempty"`
	Overflow   bool    `json:"overflow,omitempty"`
	TimedOut   bool    `json:"timed_out,omitempty"`
	Error      string  `json:"error,omitempty"`

	Stdout          *string `json:"stdout,omitempty"` // nil when not captured
	Stderr          *string `json:"stderr,omitempty"`
	StdoutTruncated bool    `json:"stdout_truncated,omitempty"`
	StderrTruncated bool    `json:"stderr_truncated,omitempty"`
}

// NewRecord builds a record from a settled outcome. err is the error
// returned alongside res; any error that is not an *childproc.ExitError is
// recorded as a spawn failure.
func NewRecord(kind Kind, command []string, dir string, res *childproc.Result, err error) *Record {
	rec := &Record{
		ID:       res.RunID.String(),
		Kind:     kind,
		Command:  command,
		Dir:      dir,
		PID:      res.PID,
		Started:  res.Started,
		Outcome:  Success,
		ExitCode: res.ExitCode,
		Signal:   res.Signal,
		Killed:   res.Signal != "",

		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Stdout != nil {
		s := res.Stdout.String()
		rec.Stdout = &s
		rec.StdoutTruncated = res.Stdout.Truncated
	}
	if res.Stderr != nil {
		s := res.Stderr.String()
		rec.Stderr = &s
		rec.StderrTruncated = res.Stderr.Truncated
	}
	if err == nil {
		return rec
	}

	rec.Error = err.Error()
	var exitErr *childproc.ExitError
	if !errors.As(err, &exitErr) {
		rec.Outcome = Spawn
		return rec
	}
	rec.Overflow = exitErr.Overflow
	rec.TimedOut = exitErr.TimedOut
	switch exitErr.Reason {
	case childproc.ReasonSpawn:
		rec.Outcome = Spawn
	case childproc.ReasonExitCode:
		rec.Outcome = ExitCode
	case childproc.ReasonSignal:
		rec.Outcome = Signal
	case childproc.ReasonMaxBuffer:
		rec.Outcome = MaxBuffer
	case childproc.ReasonTimeout:
		rec.Outcome = Timeout
	}
	return rec
}

// Failed reports whether the run did not succeed.
func (r *Record) Failed() bool {
	return r.Outcome != Success
}

// Status describes how the run ended, e.g. "ok", "exit 2" or
// "killed SIGTERM (max_buffer)".
func (r *Record) Status() string {
	var status string
	switch r.Outcome {
	case Success:
		status = "ok"
	case ExitCode:
		status = fmt.Sprintf("exit %d", r.ExitCode)
	case Signal:
		status = "killed " + r.Signal
	default:
		status = string(r.Outcome)
	}
	if r.Overflow && r.Outcome != MaxBuffer {
		status += " (max_buffer)"
	}
	if r.TimedOut && r.Outcome != Timeout {
		status += " (timeout)"
	}
	return status
}

// Summary is a one-line description such as
// "<id> exit 2 [sh -c exit 2] 12ms".
func (r *Record) Summary() string {
	return fmt.Sprintf("%s %s [%s] %dms", r.ID, r.Status(), strings.Join(r.Command, " "), r.DurationMS)
}

package childproc

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Output is one captured stream. A nil *Output means the stream was not
// captured, which is different from a captured stream that produced nothing.
type Output struct {
	Data      []byte // raw captured bytes, at most the cap
	Text      string // Data decoded with Encoding; empty for raw capture
	Encoding  string // "" for raw bytes
	Truncated bool   // the stream exceeded the cap
}

// Bytes returns the raw captured bytes. It is safe to call on nil.
func (o *Output) Bytes() []byte {
	if o == nil {
		return nil
	}
	return o.Data
}

// String returns the decoded text, or the raw bytes when no encoding was set.
func (o *Output) String() string {
	if o == nil {
		return ""
	}
	if o.Encoding != "" {
		return o.Text
	}
	return string(o.Data)
}

// Len returns the number of captured bytes.
func (o *Output) Len() int {
	if o == nil {
		return 0
	}
	return len(o.Data)
}

// Result describes how a process ended. Failures carry the same Result
// inside an *ExitError.
type Result struct {
	RunID    uuid.UUID
	PID      int     // -1 if the process never started
	Stdout   *Output // nil when stdout was not captured
	Stderr   *Output // nil when stderr was not captured
	ExitCode int     // -1 when there is none
	Signal   string  // terminating signal, "" when none
	Started  time.Time
	Duration time.Duration
}

// Success reports whether the process exited with code 0 and no signal.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && r.Signal == ""
}

// Reason classifies a failed outcome.
type Reason int

const (
	ReasonSpawn Reason = iota + 1
	ReasonExitCode
	ReasonSignal
	ReasonMaxBuffer
	ReasonTimeout
)

func (r Reason) String() string {
	switch r {
	case ReasonSpawn:
		return "spawn"
	case ReasonExitCode:
		return "exit_code"
	case ReasonSignal:
		return "signal"
	case ReasonMaxBuffer:
		return "max_buffer"
	case ReasonTimeout:
		return "timeout"
	}
	return "unknown"
}

// Sentinel errors matched by *ExitError.
var (
	ErrSpawn       = errors.New("process failed to start")
	ErrNonZeroExit = errors.New("process exited with non-zero code")
	ErrSignaled    = errors.New("process was killed by a signal")
	ErrMaxBuffer   = errors.New("maxBuffer length exceeded")
	ErrTimeout     = errors.New("process timed out")

	// ErrNoHandle is the panic value of Promisify(nil).
	ErrNoHandle = errors.New("childproc: nil handle")
	// ErrNotStarted is returned by Signal before the process started.
	ErrNotStarted = errors.New("process not started")
)

// ExitError is the failure outcome of an Adapter. It embeds the Result so
// output and exit details are inspected the same way as on success.
type ExitError struct {
	*Result
	Reason         Reason
	Killed         bool   // the process ended by a signal, whoever sent it
	Overflow       bool   // a captured stream exceeded its cap
	OverflowStream Stream // valid when Overflow
	TimedOut       bool
	Err            error // underlying error for ReasonSpawn
}

func (e *ExitError) Error() string {
	switch e.Reason {
	case ReasonSpawn:
		if e.Err != nil {
			return e.Err.Error()
		}
		return ErrSpawn.Error()
	case ReasonExitCode:
		return fmt.Sprintf("Process exited with code %d", e.ExitCode)
	case ReasonSignal:
		return fmt.Sprintf("Process was killed with %s", e.Signal)
	case ReasonMaxBuffer:
		return fmt.Sprintf("%s maxBuffer length exceeded", e.OverflowStream)
	case ReasonTimeout:
		return fmt.Sprintf("Process timed out after %s", e.Duration.Round(time.Millisecond))
	}
	return "process failed"
}

// Is matches the sentinel errors. Overflow and timeout match even when the
// process then ended by signal or with a non-zero code.
func (e *ExitError) Is(target error) bool {
	switch target {
	case ErrSpawn:
		return e.Reason == ReasonSpawn
	case ErrNonZeroExit:
		return e.Reason == ReasonExitCode
	case ErrSignaled:
		return e.Reason == ReasonSignal
	case ErrMaxBuffer:
		return e.Overflow
	case ErrTimeout:
		return e.TimedOut
	}
	return false
}

func (e *ExitError) Unwrap() error { return e.Err }

package childproc

import (
	"encoding/json"
	"io"
	"os"
	"strconv"
)

// Stream identifies one of the child's standard streams.
type Stream int

const (
	StreamStdin Stream = iota
	StreamStdout
	StreamStderr
)

func (s Stream) String() string {
	switch s {
	case StreamStdin:
		return "stdin"
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	}
	return "stream(" + strconv.Itoa(int(s)) + ")"
}

// EventKind is the type of an Event.
type EventKind int

const (
	// EventData carries a chunk read from Stream.
	EventData EventKind = iota + 1
	// EventMessage carries one IPC message from a forked child.
	EventMessage
	// EventError reports that the process could not be started or
	// could not be waited for. It is terminal.
	EventError
	// EventExit reports that the process has exited. Output may still be
	// in flight.
	EventExit
	// EventClose reports that the process has exited and every stream has
	// been drained. It is terminal.
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventExit:
		return "exit"
	case EventClose:
		return "close"
	}
	return "unknown"
}

// Event is a single notification from a Handle.
type Event struct {
	Kind    EventKind
	Stream  Stream          // EventData
	Data    []byte          // EventData; owned by the receiver
	Message json.RawMessage // EventMessage
	Err     error           // EventError
	Code    int             // EventExit, EventClose; -1 when signalled
	Signal  string          // EventExit, EventClose; e.g. "SIGTERM"
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Kind == EventError || e.Kind == EventClose
}

// Listener receives events. Listeners for one Handle are never called
// concurrently, and must not block for long: the handle's streams stall
// while a listener runs.
type Listener func(Event)

// Handle is a live child process.
type Handle interface {
	// PID returns the OS process id, or -1 if the process never started.
	PID() int
	// Stdin returns the write end of the child's stdin, or nil when stdin
	// is not piped.
	Stdin() io.WriteCloser
	// HasStream reports whether s is piped to the parent.
	HasStream(s Stream) bool
	// Signal delivers sig to the process.
	Signal(sig os.Signal) error
	// Subscribe registers l and returns a function that removes it. A
	// listener added after the handle terminated receives the terminal
	// event immediately.
	Subscribe(l Listener) (unsubscribe func())
}

// Messenger is implemented by handles that have an IPC channel to the child.
type Messenger interface {
	Send(v any) error
}

// Tap copies every chunk of stream s to w until stop is called or the
// handle terminates. Write errors are ignored.
func Tap(h Handle, s Stream, w io.Writer) (stop func()) {
	return h.Subscribe(func(ev Event) {
		if ev.Kind == EventData && ev.Stream == s {
			_, _ = w.Write(ev.Data)
		}
	})
}

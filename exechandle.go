package childproc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"
)

// eventBuffer bounds the events queued between the stream pumps and the
// dispatcher. Once full, pumps stop reading and the child blocks on its pipes.
const eventBuffer = 64

// drainDelay is how long a killed process's pipes stay open for output that
// is already in flight. After that they are closed, so that a descendant
// still holding them cannot delay the outcome.
const drainDelay = 250 * time.Millisecond

// execHandle is the Handle for a process started through os/exec.
//
// Pumps read the child's pipes and queue events; a single dispatcher
// goroutine delivers them to listeners. Nothing is delivered until the first
// Subscribe so that early output is not lost.
type execHandle struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	piped   [3]bool
	readers [3]io.ReadCloser
	ipc     *Channel
	log     *slog.Logger

	// sinks receive each chunk before it is queued. Set before start.
	sinks       [3]io.Writer
	releaseOnce sync.Once

	// onExit runs on the wait goroutine before the terminal event is queued.
	onExit func(code int, signal string, err error)

	events   chan Event
	flowing  chan struct{}
	flowOnce sync.Once
	pumps    sync.WaitGroup

	mu        sync.Mutex
	listeners []listener
	nextID    int
	terminal  *Event
}

type listener struct {
	id int
	fn Listener
}

func newExecHandle(cmd *exec.Cmd, log *slog.Logger) *execHandle {
	h := &execHandle{
		cmd:     cmd,
		log:     log,
		events:  make(chan Event, eventBuffer),
		flowing: make(chan struct{}),
	}
	go h.dispatch()
	return h
}

// start connects stdio and starts the process. childIPC, if set, is the
// child's end of the IPC socket; the parent's copy is closed once the child
// has it. Failures are reported as a single EventError.
func (h *execHandle) start(stdio [3]StdioMode, childIPC *os.File) {
	err := h.connect(stdio)
	if err == nil {
		err = h.cmd.Start()
	}
	if childIPC != nil {
		_ = childIPC.Close()
	}
	if err != nil {
		for _, r := range h.readers {
			if r != nil {
				_ = r.Close()
			}
		}
		if h.ipc != nil {
			_ = h.ipc.Close()
		}
		h.fail(fmt.Errorf("spawn %s: %w", h.cmd.Path, err))
		return
	}

	h.log.Debug("process started", "pid", h.cmd.Process.Pid, "path", h.cmd.Path)

	for _, s := range []Stream{StreamStdout, StreamStderr} {
		if h.readers[s] != nil {
			h.pumps.Add(1)
			go h.pump(s, h.readers[s])
		}
	}
	if h.ipc != nil {
		h.pumps.Add(1)
		go h.receive()
	}
	go h.wait()
}

func (h *execHandle) connect(stdio [3]StdioMode) error {
	switch stdio[StreamStdin] {
	case Pipe:
		w, err := h.cmd.StdinPipe()
		if err != nil {
			return err
		}
		h.stdin = w
		h.piped[StreamStdin] = true
	case Inherit:
		h.cmd.Stdin = os.Stdin
	}

	for _, s := range []Stream{StreamStdout, StreamStderr} {
		switch stdio[s] {
		case Pipe:
			var r io.ReadCloser
			var err error
			if s == StreamStdout {
				r, err = h.cmd.StdoutPipe()
			} else {
				r, err = h.cmd.StderrPipe()
			}
			if err != nil {
				return err
			}
			h.readers[s] = r
			h.piped[s] = true
		case Inherit:
			if s == StreamStdout {
				h.cmd.Stdout = os.Stdout
			} else {
				h.cmd.Stderr = os.Stderr
			}
		}
	}
	return nil
}

func (h *execHandle) pump(s Stream, r io.Reader) {
	defer h.pumps.Done()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := slices.Clone(buf[:n])
			if w := h.sinks[s]; w != nil {
				_, _ = w.Write(chunk)
			}
			h.events <- Event{Kind: EventData, Stream: s, Data: chunk}
		}
		if err != nil {
			return
		}
	}
}

func (h *execHandle) receive() {
	defer h.pumps.Done()
	for {
		var msg json.RawMessage
		if err := h.ipc.Receive(&msg); err != nil {
			if !errors.Is(err, io.EOF) {
				h.log.Debug("ipc receive stopped", "error", err)
			}
			return
		}
		h.events <- Event{Kind: EventMessage, Message: msg}
	}
}

// wait reaps the process once every pump has drained its pipe, which
// os/exec requires before Wait.
func (h *execHandle) wait() {
	h.pumps.Wait()
	err := h.cmd.Wait()
	if h.ipc != nil {
		_ = h.ipc.Close()
	}

	ps := h.cmd.ProcessState
	if ps == nil {
		h.fail(fmt.Errorf("waiting for %s: %w", h.cmd.Path, err))
		return
	}
	code, sig := exitStatus(ps)
	if h.onExit != nil {
		h.onExit(code, sig, nil)
	}
	h.events <- Event{Kind: EventExit, Code: code, Signal: sig}
	h.events <- Event{Kind: EventClose, Code: code, Signal: sig}
	close(h.events)
}

// release closes the output pipes after drainDelay. Pumps blocked on a pipe
// that a descendant keeps open then return, and the process is reaped.
func (h *execHandle) release() {
	h.releaseOnce.Do(func() {
		time.AfterFunc(drainDelay, func() {
			for _, r := range h.readers {
				if r != nil {
					_ = r.Close()
				}
			}
		})
	})
}

func (h *execHandle) fail(err error) {
	if h.onExit != nil {
		h.onExit(-1, "", err)
	}
	h.events <- Event{Kind: EventError, Err: err, Code: -1}
	close(h.events)
}

func (h *execHandle) flow() {
	h.flowOnce.Do(func() { close(h.flowing) })
}

func (h *execHandle) dispatch() {
	<-h.flowing
	for ev := range h.events {
		h.mu.Lock()
		if ev.Terminal() {
			h.terminal = &ev
		}
		fns := make([]Listener, len(h.listeners))
		for i, l := range h.listeners {
			fns[i] = l.fn
		}
		h.mu.Unlock()

		for _, fn := range fns {
			fn(ev)
		}
	}
}

func (h *execHandle) PID() int {
	if h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

func (h *execHandle) Stdin() io.WriteCloser { return h.stdin }

func (h *execHandle) HasStream(s Stream) bool {
	if s < StreamStdin || s > StreamStderr {
		return false
	}
	return h.piped[s]
}

func (h *execHandle) Signal(sig os.Signal) error {
	if h.cmd.Process == nil {
		return ErrNotStarted
	}
	return h.cmd.Process.Signal(sig)
}

func (h *execHandle) Subscribe(fn Listener) func() {
	unsubscribe := h.add(fn)
	h.flow()
	return unsubscribe
}

// add registers fn without releasing queued events, so that several
// listeners can be attached before any of them sees the first chunk.
func (h *execHandle) add(fn Listener) func() {
	h.mu.Lock()
	if h.terminal != nil {
		ev := *h.terminal
		h.mu.Unlock()
		fn(ev)
		return func() {}
	}
	id := h.nextID
	h.nextID++
	h.listeners = append(h.listeners, listener{id: id, fn: fn})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.listeners = slices.DeleteFunc(h.listeners, func(l listener) bool { return l.id == id })
	}
}

func (h *execHandle) Send(v any) error {
	if h.ipc == nil {
		return ErrNoIPC
	}
	return h.ipc.Send(v)
}

package childproc

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/deixis/childproc/internal/capture"
	"github.com/deixis/childproc/internal/codec"
	"github.com/google/uuid"
)

// Adapter is a live Handle that can also be awaited for its outcome.
//
// Every Handle method is forwarded to the wrapped handle unchanged. The
// outcome is settled exactly once, by the first terminal event: an error
// settles a spawn failure and a close is classified by code and signal.
type Adapter struct {
	Handle

	opts    *options
	started time.Time
	done    chan struct{}

	mu          sync.Mutex
	captures    map[Stream]*capture.Capture
	overflowed  bool
	overflow    Stream
	timedOut    bool
	timer       *time.Timer
	unsubscribe func()
	settled     bool
	result      *Result
	err         error
	callbacks   []func(*Result, error)
}

// outcome is what a process reports when it ends. The callback path fills
// stdout and stderr itself; the event path leaves them to the adapter's
// captures.
type outcome struct {
	err    error
	code   int
	signal string
	stdout *Output
	stderr *Output
}

// Promisify wraps h. Capture is enabled by WithEncoding or WithMaxBuffer;
// each stream h pipes is then captured up to its own cap, and a stream that
// overflows sends h the kill signal.
//
// Invalid options settle a spawn failure without touching h. Promisify
// panics with ErrNoHandle when h is nil.
func Promisify(h Handle, opts ...Option) *Adapter {
	if h == nil {
		panic(ErrNoHandle)
	}
	o := resolve(opts)
	a := newAdapter(h, o)
	if o.err != nil {
		a.settle(outcome{err: o.err, code: -1})
		return a
	}
	a.observe()
	return a
}

func newAdapter(h Handle, o *options) *Adapter {
	return &Adapter{
		Handle:  h,
		opts:    o,
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

// observe is the event path: the adapter captures output itself and
// settles from the handle's terminal event.
func (a *Adapter) observe() {
	if a.opts.captureEnabled() {
		a.captures = make(map[Stream]*capture.Capture, 2)
		for _, s := range []Stream{StreamStdout, StreamStderr} {
			if a.Handle.HasStream(s) {
				a.captures[s] = capture.New(a.opts.limit(), func() { a.exceeded(s) })
			}
		}
	}

	unsubscribe := a.Handle.Subscribe(a.handle)

	a.mu.Lock()
	if a.settled {
		a.mu.Unlock()
		unsubscribe()
		return
	}
	a.unsubscribe = unsubscribe
	a.mu.Unlock()
	a.armTimer()
}

func (a *Adapter) handle(ev Event) {
	switch ev.Kind {
	case EventData:
		a.mu.Lock()
		c := a.captures[ev.Stream]
		settled := a.settled
		a.mu.Unlock()
		if c != nil && !settled {
			_, _ = c.Write(ev.Data)
		}
	case EventError:
		a.settle(outcome{err: ev.Err, code: -1})
	case EventClose:
		a.settle(outcome{code: ev.Code, signal: ev.Signal})
	}
}

// complete is the callback path: the primitive has already captured and
// decoded the output.
func (a *Adapter) complete(oc outcome) {
	a.settle(oc)
}

// exceeded records the first stream to overflow and asks the process to
// stop. The signal is sent without holding the lock.
func (a *Adapter) exceeded(s Stream) {
	a.mu.Lock()
	if a.settled {
		a.mu.Unlock()
		return
	}
	first := !a.overflowed
	if first {
		a.overflowed = true
		a.overflow = s
	}
	a.mu.Unlock()

	if !first {
		return
	}
	a.opts.logger.Warn("output limit exceeded",
		"run_id", a.opts.runID, "stream", s.String(), "limit", a.opts.limit())
	a.kill()
}

func (a *Adapter) armTimer() {
	if a.opts.timeout <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.settled {
		return
	}
	a.timer = time.AfterFunc(a.opts.timeout, func() {
		a.mu.Lock()
		if a.settled {
			a.mu.Unlock()
			return
		}
		a.timedOut = true
		a.mu.Unlock()
		a.opts.logger.Warn("process timed out", "run_id", a.opts.runID, "timeout", a.opts.timeout)
		a.kill()
	})
}

func (a *Adapter) kill() {
	if err := a.Kill(a.opts.killSignal); err != nil {
		a.opts.logger.Debug("kill failed", "run_id", a.opts.runID, "error", err)
	}
}

// releaser is implemented by handles that can stop waiting for output
// pipes held open by the process's descendants.
type releaser interface {
	release()
}

// Kill sends sig like Signal. For processes started by this package it
// also stops waiting for their output: the pipes are closed shortly after,
// so the outcome settles even when a background job of the process still
// holds them. This happens even if the signal could not be delivered
// because the process had already exited.
func (a *Adapter) Kill(sig os.Signal) error {
	err := a.Handle.Signal(sig)
	if r, ok := a.Handle.(releaser); ok {
		r.release()
	}
	return err
}

func (a *Adapter) settle(oc outcome) {
	a.mu.Lock()
	if a.settled {
		a.mu.Unlock()
		return
	}
	a.settled = true

	if a.captures != nil {
		oc.stdout = a.finalize(StreamStdout)
		oc.stderr = a.finalize(StreamStderr)
	}
	res := &Result{
		RunID:    a.opts.runID,
		PID:      a.Handle.PID(),
		Stdout:   oc.stdout,
		Stderr:   oc.stderr,
		ExitCode: oc.code,
		Signal:   oc.signal,
		Started:  a.started,
		Duration: time.Since(a.started),
	}
	var overflow *Stream
	if a.overflowed {
		overflow = &a.overflow
	}
	if err := classify(res, oc.err, overflow, a.timedOut); err != nil {
		a.err = err
	}
	a.result = res

	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	timer := a.timer
	callbacks := a.callbacks
	a.callbacks = nil
	err := a.err
	a.mu.Unlock()

	close(a.done)
	if unsubscribe != nil {
		unsubscribe()
	}
	if timer != nil {
		timer.Stop()
	}

	a.opts.logger.Debug("process settled",
		"run_id", res.RunID, "pid", res.PID, "exit_code", res.ExitCode,
		"signal", res.Signal, "duration", res.Duration, "error", err)

	for _, fn := range callbacks {
		fn(res, err)
	}
}

// finalize must be called with a.mu held.
func (a *Adapter) finalize(s Stream) *Output {
	c, ok := a.captures[s]
	if !ok {
		return nil
	}
	return newOutput(c.Finalize(), a.opts.encoding, c.Overflowed())
}

func newOutput(data []byte, enc string, truncated bool) *Output {
	out := &Output{Data: data, Encoding: enc, Truncated: truncated}
	if enc != codec.Raw {
		text, err := codec.Decode(enc, data)
		if err != nil {
			text = string(data)
		}
		out.Text = text
	}
	return out
}

// classify returns nil for a clean exit and an *ExitError otherwise.
func classify(res *Result, spawnErr error, overflow *Stream, timedOut bool) error {
	e := &ExitError{
		Result:   res,
		Killed:   res.Signal != "",
		TimedOut: timedOut,
	}
	if overflow != nil {
		e.Overflow = true
		e.OverflowStream = *overflow
	}

	switch {
	case spawnErr != nil:
		e.Reason = ReasonSpawn
		e.Err = spawnErr
		res.ExitCode = -1
	case res.Signal != "":
		e.Reason = ReasonSignal
		res.ExitCode = -1
	case res.ExitCode != 0:
		e.Reason = ReasonExitCode
	case e.Overflow:
		e.Reason = ReasonMaxBuffer
	case timedOut:
		e.Reason = ReasonTimeout
	default:
		return nil
	}
	return e
}

// RunID identifies this run in logs and results.
func (a *Adapter) RunID() uuid.UUID { return a.opts.runID }

// Done is closed once the outcome is settled.
func (a *Adapter) Done() <-chan struct{} { return a.done }

// Settled reports whether the outcome is settled.
func (a *Adapter) Settled() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the outcome is settled or ctx is done. Once settled the
// Result is never nil; err is nil on success and an *ExitError otherwise.
// Giving up on ctx leaves the process running.
func (a *Adapter) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-a.done:
		return a.Outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Outcome returns the settled outcome without blocking. The Result is nil
// while the process is still running.
func (a *Adapter) Outcome() (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.err
}

// OnSettle calls fn with the outcome once it is settled, or immediately if
// it already is. Callbacks run in registration order.
func (a *Adapter) OnSettle(fn func(*Result, error)) {
	a.mu.Lock()
	if !a.settled {
		a.callbacks = append(a.callbacks, fn)
		a.mu.Unlock()
		return
	}
	res, err := a.result, a.err
	a.mu.Unlock()
	fn(res, err)
}

// Send forwards v over the IPC channel of a forked child.
func (a *Adapter) Send(v any) error {
	if m, ok := a.Handle.(Messenger); ok {
		return m.Send(v)
	}
	return ErrNoIPC
}

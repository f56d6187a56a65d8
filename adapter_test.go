//go:build unix

package childproc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

// fakeHandle delivers events synchronously from the test goroutine.
type fakeHandle struct {
	mu        sync.Mutex
	pid       int
	streams   map[Stream]bool
	listeners map[int]Listener
	next      int
	signals   []os.Signal
	onSignal  func(os.Signal)
}

func newFakeHandle(streams ...Stream) *fakeHandle {
	f := &fakeHandle{pid: 4242, streams: map[Stream]bool{}, listeners: map[int]Listener{}}
	for _, s := range streams {
		f.streams[s] = true
	}
	return f
}

func (f *fakeHandle) PID() int { return f.pid }
func (f *fakeHandle) Stdin() io.WriteCloser { return nil }
func (f *fakeHandle) HasStream(s Stream) bool { return f.streams[s] }

func (f *fakeHandle) Signal(sig os.Signal) error {
	f.mu.Lock()
	f.signals = append(f.signals, sig)
	fn := f.onSignal
	f.mu.Unlock()
	if fn != nil {
		fn(sig)
	}
	return nil
}

func (f *fakeHandle) Subscribe(l Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = l
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeHandle) emit(ev Event) {
	f.mu.Lock()
	ls := make([]Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

func (f *fakeHandle) write(s Stream, data string) {
	f.emit(Event{Kind: EventData, Stream: s, Data: []byte(data)})
}

func (f *fakeHandle) close(code int, signal string) {
	f.emit(Event{Kind: EventExit, Code: code, Signal: signal})
	f.emit(Event{Kind: EventClose, Code: code, Signal: signal})
}

func (f *fakeHandle) sent() []os.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]os.Signal(nil), f.signals...)
}

func (f *fakeHandle) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func mustSettle(t *testing.T, a *Adapter) (*Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := a.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("adapter did not settle")
	}
	if res == nil {
		t.Fatal("settled Result is nil")
	}
	return res, err
}

func helloWorld(f *fakeHandle) {
	f.write(StreamStdout, "hello")
	f.write(StreamStderr, "world")
}

func TestPromisify_Success(t *testing.T) {
	f := newFakeHandle(StreamStdout, StreamStderr)
	a := Promisify(f, WithEncoding("utf8"), WithMaxBuffer(200*1024))
	helloWorld(f)
	f.close(0, "")

	res, err := mustSettle(t, a)
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if got := res.Stdout.String(); got != "hello" {
		t.Errorf("Stdout = %q, want %q", got, "hello")
	}
	if got := res.Stderr.String(); got != "world" {
		t.Errorf("Stderr = %q, want %q", got, "world")
	}
	if res.ExitCode != 0 || res.Signal != "" {
		t.Errorf("ExitCode, Signal = %d, %q, want 0, \"\"", res.ExitCode, res.Signal)
	}
	if res.PID != 4242 {
		t.Errorf("PID = %d, want 4242", res.PID)
	}
	if !res.Success() {
		t.Error("Success = false, want true")
	}
}

func TestPromisify_NonZeroExit(t *testing.T) {
	f := newFakeHandle(StreamStdout, StreamStderr)
	a := Promisify(f, WithEncoding("utf8"), WithMaxBuffer(200*1024))
	helloWorld(f)
	f.close(2, "")

	res, err := mustSettle(t, a)
	if err == nil || err.Error() != "Process exited with code 2" {
		t.Fatalf("err = %v, want %q", err, "Process exited with code 2")
	}
	if !errors.Is(err, ErrNonZeroExit) {
		t.Error("errors.Is(err, ErrNonZeroExit) = false")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("err is %T, want *ExitError", err)
	}
	if exitErr.Result != res {
		t.Error("ExitError carries a different Result")
	}
	if exitErr.ExitCode != 2 || exitErr.Signal != "" {
		t.Errorf("ExitCode, Signal = %d, %q, want 2, \"\"", exitErr.ExitCode, exitErr.Signal)
	}
	if exitErr.Stdout.String() != "hello" || exitErr.Stderr.String() != "world" {
		t.Errorf("output = %q/%q, want hello/world", exitErr.Stdout, exitErr.Stderr)
	}
	if exitErr.Killed {
		t.Error("Killed = true, want false")
	}
}

func TestPromisify_Signal(t *testing.T) {
	f := newFakeHandle(StreamStdout, StreamStderr)
	a := Promisify(f, WithEncoding("utf8"), WithMaxBuffer(200*1024))
	helloWorld(f)
	f.close(-1, "SIGINT")

	res, err := mustSettle(t, a)
	if err == nil || err.Error() != "Process was killed with SIGINT" {
		t.Fatalf("err = %v, want %q", err, "Process was killed with SIGINT")
	}
	if !errors.Is(err, ErrSignaled) {
		t.Error("errors.Is(err, ErrSignaled) = false")
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
	if res.Signal != "SIGINT" {
		t.Errorf("Signal = %q, want SIGINT", res.Signal)
	}
	var exitErr *ExitError
	errors.As(err, &exitErr)
	if !exitErr.Killed {
		t.Error("Killed = false, want true")
	}
	if exitErr.Stdout.String() != "hello" {
		t.Errorf("Stdout = %q, want hello", exitErr.Stdout)
	}
}

func TestPromisify_Overflow(t *testing.T) {
	f := newFakeHandle(StreamStdout, StreamStderr)
	f.onSignal = func(sig os.Signal) {
		f.close(-1, SignalName(sig))
	}
	a := Promisify(f, WithMaxBuffer(1))
	f.write(StreamStdout, strings.Repeat("x", 1000))

	res, err := mustSettle(t, a)
	if err == nil {
		t.Fatal("err = nil, want overflow failure")
	}
	if !errors.Is(err, ErrMaxBuffer) {
		t.Error("errors.Is(err, ErrMaxBuffer) = false")
	}
	if res.Stdout.Len() != 1 {
		t.Errorf("len(Stdout) = %d, want 1", res.Stdout.Len())
	}
	if !res.Stdout.Truncated {
		t.Error("Stdout.Truncated = false, want true")
	}
	if res.Stderr == nil || res.Stderr.Truncated {
		t.Errorf("Stderr = %+v, want present and not truncated", res.Stderr)
	}
	sent := f.sent()
	if len(sent) != 1 || sent[0] != syscall.SIGTERM {
		t.Errorf("signals = %v, want [SIGTERM]", sent)
	}
	var exitErr *ExitError
	errors.As(err, &exitErr)
	if exitErr.OverflowStream != StreamStdout {
		t.Errorf("OverflowStream = %v, want stdout", exitErr.OverflowStream)
	}
}

func TestPromisify_OverflowCleanExit(t *testing.T) {
	f := newFakeHandle(StreamStdout, StreamStderr)
	a := Promisify(f, WithMaxBuffer(4), WithKillSignal(syscall.SIGUSR1))
	f.write(StreamStderr, "toolong")
	f.close(0, "")

	_, err := mustSettle(t, a)
	if err == nil || err.Error() != "stderr maxBuffer length exceeded" {
		t.Fatalf("err = %v, want %q", err, "stderr maxBuffer length exceeded")
	}
	if sent := f.sent(); len(sent) != 1 || sent[0] != syscall.SIGUSR1 {
		t.Errorf("signals = %v, want [SIGUSR1]", sent)
	}
}

func TestPromisify_TruncationExactness(t *testing.T) {
	f := newFakeHandle(StreamStdout)
	a := Promisify(f, WithMaxBuffer(10))
	for range 7 {
		f.write(StreamStdout, "abc")
	}
	f.close(0, "")

	res, _ := mustSettle(t, a)
	if got := string(res.Stdout.Bytes()); got != "abcabcabca" {
		t.Errorf("Stdout = %q, want %q", got, "abcabcabca")
	}
	if n := len(f.sent()); n != 1 {
		t.Errorf("kill requests = %d, want 1", n)
	}
}

func TestPromisify_ZeroCap(t *testing.T) {
	f := newFakeHandle(StreamStdout)
	a := Promisify(f, WithMaxBuffer(0))
	f.write(StreamStdout, "")
	if n := len(f.sent()); n != 0 {
		t.Fatalf("kill requests after empty chunk = %d, want 0", n)
	}
	f.write(StreamStdout, "x")
	if n := len(f.sent()); n != 1 {
		t.Errorf("kill requests = %d, want 1", n)
	}
	f.close(-1, "SIGTERM")

	res, err := mustSettle(t, a)
	if !errors.Is(err, ErrMaxBuffer) {
		t.Errorf("err = %v, want ErrMaxBuffer", err)
	}
	if res.Stdout == nil || res.Stdout.Len() != 0 {
		t.Errorf("Stdout = %+v, want present and empty", res.Stdout)
	}
}

func TestPromisify_CaptureDisabled(t *testing.T) {
	f := newFakeHandle(StreamStdout, StreamStderr)
	a := Promisify(f)
	helloWorld(f)
	f.close(0, "")

	res, err := mustSettle(t, a)
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if res.Stdout != nil || res.Stderr != nil {
		t.Errorf("Stdout, Stderr = %v, %v, want both absent", res.Stdout, res.Stderr)
	}
}

func TestPromisify_MissingStream(t *testing.T) {
	f := newFakeHandle(StreamStdout)
	a := Promisify(f, WithEncoding("utf8"))
	f.write(StreamStdout, "only out")
	f.close(0, "")

	res, _ := mustSettle(t, a)
	if res.Stderr != nil {
		t.Errorf("Stderr = %v, want absent", res.Stderr)
	}
	if res.Stdout == nil {
		t.Error("Stdout absent, want present")
	}
}

func TestPromisify_EmptyOutputIsPresent(t *testing.T) {
	f := newFakeHandle(StreamStdout, StreamStderr)
	a := Promisify(f, WithEncoding("buffer"))
	f.close(0, "")

	res, _ := mustSettle(t, a)
	if res.Stdout == nil || res.Stdout.Len() != 0 {
		t.Errorf("Stdout = %v, want present and empty", res.Stdout)
	}
}

func TestPromisify_ExactlyOnce(t *testing.T) {
	f := newFakeHandle(StreamStdout)
	a := Promisify(f, WithEncoding("utf8"))

	calls := 0
	a.OnSettle(func(*Result, error) { calls++ })

	f.write(StreamStdout, "a")
	f.close(3, "")
	first, firstErr := a.Outcome()

	// Terminal events after settlement are ignored.
	f.emit(Event{Kind: EventClose, Code: 0})
	f.emit(Event{Kind: EventError, Err: errors.New("late")})
	f.write(StreamStdout, "b")

	res, err := a.Outcome()
	if res != first || err != firstErr {
		t.Error("outcome changed after settlement")
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if res.Stdout.String() != "a" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "a")
	}
	if calls != 1 {
		t.Errorf("OnSettle calls = %d, want 1", calls)
	}
	if n := f.subscribers(); n != 0 {
		t.Errorf("subscribers after settle = %d, want 0", n)
	}
}

func TestPromisify_ErrorEvent(t *testing.T) {
	f := newFakeHandle(StreamStdout)
	a := Promisify(f, WithEncoding("utf8"))
	f.write(StreamStdout, "partial")
	spawnErr := errors.New("spawn nope ENOENT")
	f.emit(Event{Kind: EventError, Err: spawnErr})
	f.close(0, "")

	res, err := mustSettle(t, a)
	if !errors.Is(err, ErrSpawn) {
		t.Errorf("err = %v, want ErrSpawn", err)
	}
	if !errors.Is(err, spawnErr) {
		t.Error("err does not wrap the handle's error")
	}
	if err.Error() != "spawn nope ENOENT" {
		t.Errorf("Error() = %q, want the spawn error text", err.Error())
	}
	if res.Stdout.String() != "partial" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "partial")
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
}

func TestPromisify_UnknownEncoding(t *testing.T) {
	f := newFakeHandle(StreamStdout)
	a := Promisify(f, WithEncoding("klingon"))

	_, err := mustSettle(t, a)
	if !errors.Is(err, ErrSpawn) {
		t.Errorf("err = %v, want ErrSpawn", err)
	}
	if n := f.subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
}

func TestPromisify_NilHandlePanics(t *testing.T) {
	defer func() {
		if r := recover(); r != ErrNoHandle {
			t.Errorf("recover() = %v, want ErrNoHandle", r)
		}
	}()
	Promisify(nil)
}

func TestPromisify_ForwardsHandle(t *testing.T) {
	f := newFakeHandle(StreamStdout)
	a := Promisify(f)

	if a.PID() != 4242 {
		t.Errorf("PID = %d, want 4242", a.PID())
	}
	if !a.HasStream(StreamStdout) || a.HasStream(StreamStderr) {
		t.Error("HasStream not forwarded")
	}
	if err := a.Signal(syscall.SIGHUP); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if sent := f.sent(); len(sent) != 1 || sent[0] != syscall.SIGHUP {
		t.Errorf("signals = %v, want [SIGHUP]", sent)
	}

	var got []EventKind
	stop := a.Subscribe(func(ev Event) { got = append(got, ev.Kind) })
	f.write(StreamStdout, "x")
	stop()
	f.close(0, "")
	if len(got) != 1 || got[0] != EventData {
		t.Errorf("events = %v, want [data]", got)
	}
	if err := a.Send("hi"); !errors.Is(err, ErrNoIPC) {
		t.Errorf("Send err = %v, want ErrNoIPC", err)
	}
}

func TestPromisify_Timeout(t *testing.T) {
	f := newFakeHandle(StreamStdout)
	f.onSignal = func(sig os.Signal) {
		f.close(-1, SignalName(sig))
	}
	a := Promisify(f, WithTimeout(20*time.Millisecond))

	_, err := mustSettle(t, a)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, ErrSignaled) {
		t.Errorf("err = %v, want ErrSignaled", err)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	f := newFakeHandle()
	a := Promisify(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := a.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if res != nil {
		t.Errorf("res = %v, want nil", res)
	}
	if a.Settled() {
		t.Error("Settled = true after abandoned wait")
	}
}

func TestOnSettle_AfterSettlement(t *testing.T) {
	f := newFakeHandle()
	a := Promisify(f)
	f.close(0, "")

	var got *Result
	a.OnSettle(func(r *Result, err error) { got = r })
	if got == nil {
		t.Error("OnSettle did not run immediately on a settled adapter")
	}
}

func TestTap(t *testing.T) {
	f := newFakeHandle(StreamStdout, StreamStderr)
	var buf bytes.Buffer
	stop := Tap(f, StreamStdout, &buf)
	f.write(StreamStdout, "a")
	f.write(StreamStderr, "b")
	stop()
	f.write(StreamStdout, "c")

	if buf.String() != "a" {
		t.Errorf("tapped = %q, want %q", buf.String(), "a")
	}
}

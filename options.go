package childproc

import (
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/deixis/childproc/internal/codec"
	"github.com/google/uuid"
)

// DefaultMaxBuffer is the per-stream capture cap used when capture is
// enabled without an explicit limit.
const DefaultMaxBuffer = 1 << 20 // 1 MiB

// DefaultShell runs Exec command lines.
const DefaultShell = "/bin/sh"

// StdioMode selects what a child's standard stream is connected to.
type StdioMode int

const (
	// Pipe connects the stream to the parent.
	Pipe StdioMode = iota
	// Inherit shares the parent's stream.
	Inherit
	// Ignore connects the stream to the null device.
	Ignore
)

// Option configures a process or an Adapter.
type Option func(*options)

type options struct {
	encoding     string
	encodingSet  bool
	maxBuffer    int
	maxBufferSet bool
	killSignal   os.Signal

	stdio     [3]StdioMode
	stdioSet  bool
	dir       string
	env       []string
	shell     string
	execPath  string
	timeout   time.Duration
	logger    *slog.Logger
	runID     uuid.UUID
	listeners []Listener

	err error
}

// WithEncoding decodes captured output as text. "buffer" and "" keep raw
// bytes but still enable capture. Unknown names fail the process with
// ErrSpawn.
func WithEncoding(name string) Option {
	return func(o *options) {
		enc, err := codec.Normalize(name)
		if err != nil && o.err == nil {
			o.err = err
		}
		o.encoding = enc
		o.encodingSet = true
	}
}

// WithMaxBuffer caps each captured stream at n bytes.
func WithMaxBuffer(n int) Option {
	return func(o *options) {
		o.maxBuffer = max(n, 0)
		o.maxBufferSet = true
	}
}

// WithKillSignal sets the signal sent when output overflows or the timeout
// expires. The default is SIGTERM.
func WithKillSignal(sig os.Signal) Option {
	return func(o *options) {
		if sig != nil {
			o.killSignal = sig
		}
	}
}

// WithStdio sets the stdin, stdout and stderr modes.
func WithStdio(stdin, stdout, stderr StdioMode) Option {
	return func(o *options) {
		o.stdio = [3]StdioMode{stdin, stdout, stderr}
		o.stdioSet = true
	}
}

// WithDir sets the working directory of the child.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithEnv replaces the child's environment.
func WithEnv(env []string) Option {
	return func(o *options) { o.env = env }
}

// WithShell sets the shell Exec runs command lines with.
func WithShell(shell string) Option {
	return func(o *options) { o.shell = shell }
}

// WithExecPath runs Fork targets through an interpreter.
func WithExecPath(path string) Option {
	return func(o *options) { o.execPath = path }
}

// WithTimeout sends the kill signal once d has elapsed.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger logs lifecycle events to l.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRunID sets the identifier reported in Result.RunID.
func WithRunID(id uuid.UUID) Option {
	return func(o *options) { o.runID = id }
}

// WithListener subscribes l to the process before it starts, so it sees
// every event. Promisify ignores it.
func WithListener(l Listener) Option {
	return func(o *options) {
		if l != nil {
			o.listeners = append(o.listeners, l)
		}
	}
}

func resolve(opts []Option) *options {
	o := &options{killSignal: defaultKillSignal}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.runID == uuid.Nil {
		o.runID = uuid.New()
	}
	if o.shell == "" {
		o.shell = DefaultShell
	}
	return o
}

func (o *options) captureEnabled() bool {
	return o.encodingSet || o.maxBufferSet
}

func (o *options) limit() int {
	if o.maxBufferSet {
		return o.maxBuffer
	}
	return DefaultMaxBuffer
}

func (o *options) apply(cmd *exec.Cmd) {
	cmd.Dir = o.dir
	if o.env != nil {
		cmd.Env = o.env
	}
}

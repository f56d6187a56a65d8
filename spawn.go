package childproc

import (
	"os"
	"os/exec"
	"slices"
	"strconv"

	"github.com/deixis/childproc/internal/capture"
	"github.com/deixis/childproc/internal/codec"
)

// Spawn starts name with args. All three standard streams are piped unless
// WithStdio says otherwise. Output is captured only when WithEncoding or
// WithMaxBuffer is given; use WithListener or Tap to stream it instead.
//
// Spawn never fails synchronously: a process that cannot start settles
// with an error matching ErrSpawn.
func Spawn(name string, args []string, opts ...Option) *Adapter {
	o := resolve(opts)
	cmd := exec.Command(name, args...)
	o.apply(cmd)
	h := newExecHandle(cmd, o.logger)
	if o.err != nil {
		h.fail(o.err)
	} else {
		h.start(o.stdio, nil)
	}
	return launch(h, o)
}

// Fork starts the Go program (or script, with WithExecPath) at path with an
// IPC channel. Messages from the child arrive as EventMessage; send with
// Adapter.Send. The child reaches its side through Parent. Standard streams
// are inherited unless WithStdio says otherwise.
func Fork(path string, args []string, opts ...Option) *Adapter {
	o := resolve(opts)
	if !o.stdioSet {
		o.stdio = [3]StdioMode{Inherit, Inherit, Inherit}
	}

	var cmd *exec.Cmd
	if o.execPath != "" {
		cmd = exec.Command(o.execPath, append([]string{path}, args...)...)
	} else {
		cmd = exec.Command(path, args...)
	}
	o.apply(cmd)
	env := cmd.Env
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = append(slices.Clip(env), EnvIPCFD+"="+strconv.Itoa(ipcChildFD))

	h := newExecHandle(cmd, o.logger)
	if o.err != nil {
		h.fail(o.err)
		return launch(h, o)
	}
	parent, child, err := ipcPair()
	if err != nil {
		h.fail(err)
		return launch(h, o)
	}
	cmd.ExtraFiles = []*os.File{child}
	h.ipc = parent
	h.start(o.stdio, child)
	return launch(h, o)
}

// launch attaches the option listeners and the adapter before any queued
// event is delivered.
func launch(h *execHandle, o *options) *Adapter {
	for _, l := range o.listeners {
		h.add(l)
	}
	a := newAdapter(h, o)
	a.observe()
	return a
}

// Exec runs command through the shell (DefaultShell unless WithShell) and
// collects its output, decoded as UTF-8 unless WithEncoding says otherwise
// and capped per stream at DefaultMaxBuffer unless WithMaxBuffer says
// otherwise.
func Exec(command string, opts ...Option) *Adapter {
	o := resolve(append([]Option{WithEncoding(codec.UTF8)}, opts...))
	return collect(exec.Command(o.shell, "-c", command), o)
}

// ExecFile runs file with args directly, without a shell, and collects its
// output like Exec.
func ExecFile(file string, args []string, opts ...Option) *Adapter {
	o := resolve(append([]Option{WithEncoding(codec.UTF8)}, opts...))
	return collect(exec.Command(file, args...), o)
}

// collect runs cmd with every chunk copied into a bounded capture before it
// is published. The captures are finalized when the process ends and handed
// to the adapter as a finished outcome.
func collect(cmd *exec.Cmd, o *options) *Adapter {
	o.apply(cmd)
	h := newExecHandle(cmd, o.logger)
	a := newAdapter(h, o)

	var captures [3]*capture.Capture
	for _, s := range []Stream{StreamStdout, StreamStderr} {
		if o.stdio[s] != Pipe {
			continue
		}
		c := capture.New(o.limit(), func() { a.exceeded(s) })
		captures[s] = c
		h.sinks[s] = c
	}

	h.onExit = func(code int, signal string, err error) {
		oc := outcome{err: err, code: code, signal: signal}
		if c := captures[StreamStdout]; c != nil {
			oc.stdout = newOutput(c.Finalize(), o.encoding, c.Overflowed())
		}
		if c := captures[StreamStderr]; c != nil {
			oc.stderr = newOutput(c.Finalize(), o.encoding, c.Overflowed())
		}
		a.complete(oc)
	}

	for _, l := range o.listeners {
		h.add(l)
	}
	h.flow()

	if o.err != nil {
		h.fail(o.err)
	} else {
		h.start(o.stdio, nil)
	}
	a.armTimer()
	return a
}

// Package childproc runs child processes and exposes each one twice: as a
// live handle (PID, stdin, signals, stream events) and as a value that can be
// awaited for a single classified outcome.
//
// Spawn, Fork, Exec and ExecFile start a process and return an *Adapter.
// Promisify wraps any other Handle the same way.
//
//	a := childproc.Exec("git status --short")
//	res, err := a.Wait(ctx)
//	var exitErr *childproc.ExitError
//	if errors.As(err, &exitErr) {
//		log.Printf("%v (stderr: %s)", exitErr, exitErr.Stderr)
//	}
//
// Output capture is opt-in for Spawn and Promisify (set an encoding or a
// buffer limit) and always on for Exec and ExecFile. Each captured stream is
// capped independently; a stream that exceeds its cap has its prefix kept,
// and the process is sent the kill signal.
package childproc

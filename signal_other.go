//go:build !unix

package childproc

import (
	"fmt"
	"os"
	"strings"
)

var defaultKillSignal os.Signal = os.Kill

// SignalName returns the conventional name of sig.
func SignalName(sig os.Signal) string {
	switch sig {
	case os.Kill:
		return "SIGKILL"
	case os.Interrupt:
		return "SIGINT"
	}
	return sig.String()
}

// ParseSignal accepts SIGKILL and SIGINT, the only signals deliverable here.
func ParseSignal(name string) (os.Signal, error) {
	switch strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SIG") {
	case "KILL", "TERM":
		return os.Kill, nil
	case "INT":
		return os.Interrupt, nil
	}
	return nil, fmt.Errorf("unknown signal %q", name)
}

func exitStatus(ps *os.ProcessState) (code int, signal string) {
	return ps.ExitCode(), ""
}

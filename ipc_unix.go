//go:build unix

package childproc

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

// ipcChildFD is the descriptor the child end lands on: the first entry of
// exec.Cmd.ExtraFiles.
const ipcChildFD = 3

func ipcPair() (*Channel, *os.File, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("creating ipc socketpair: %w", err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])

	pf := os.NewFile(uintptr(fds[0]), "childproc-ipc")
	conn, err := net.FileConn(pf)
	_ = pf.Close()
	if err != nil {
		_ = unix.Close(fds[1])
		return nil, nil, fmt.Errorf("opening ipc socket: %w", err)
	}
	return newChannel(conn), os.NewFile(uintptr(fds[1]), "childproc-ipc-child"), nil
}

var parentChannel = sync.OnceValues(func() (*Channel, error) {
	v := os.Getenv(EnvIPCFD)
	if v == "" {
		return nil, ErrNoParent
	}
	fd, err := strconv.Atoi(v)
	if err != nil || fd < 0 {
		return nil, fmt.Errorf("invalid %s %q", EnvIPCFD, v)
	}
	f := os.NewFile(uintptr(fd), "childproc-ipc")
	conn, err := net.FileConn(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("opening parent ipc channel: %w", err)
	}
	return newChannel(conn), nil
})

// Parent returns the IPC channel to the process that forked this one.
// Every call returns the same channel.
func Parent() (*Channel, error) {
	return parentChannel()
}

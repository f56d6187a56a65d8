//go:build !unix

package childproc

import (
	"errors"
	"os"
)

const ipcChildFD = 3

var errIPCUnsupported = errors.New("fork IPC is not supported on this platform")

func ipcPair() (*Channel, *os.File, error) {
	return nil, nil, errIPCUnsupported
}

// Parent returns the IPC channel to the process that forked this one.
func Parent() (*Channel, error) {
	return nil, ErrNoParent
}

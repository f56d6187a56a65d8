package childproc

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// EnvIPCFD names the environment variable that tells a forked child which
// file descriptor carries its IPC channel.
const EnvIPCFD = "CHILDPROC_IPC_FD"

var (
	// ErrNoIPC is returned by Send on a handle without an IPC channel.
	ErrNoIPC = errors.New("process has no IPC channel")
	// ErrNoParent is returned by Parent when the process was not forked.
	ErrNoParent = errors.New("no parent IPC channel")
)

// Channel exchanges newline-delimited JSON messages between a parent and a
// forked child. Send is safe for concurrent use; Receive is not.
type Channel struct {
	conn io.ReadWriteCloser
	mu   sync.Mutex
	enc  *json.Encoder
	dec  *json.Decoder
}

func newChannel(conn io.ReadWriteCloser) *Channel {
	return &Channel{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
	}
}

// Send writes v as one message.
func (c *Channel) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(v)
}

// Receive reads the next message into v. It returns io.EOF once the other
// side has closed the channel.
func (c *Channel) Receive(v any) error {
	return c.dec.Decode(v)
}

// Close disconnects the channel.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// Package capture accumulates a child's output stream under a byte cap.
package capture

import (
	"bytes"
	"sync"
)

// Capture collects written chunks in order, up to limit bytes. The first
// write that does not fit keeps the prefix that does, marks the capture as
// overflowed and calls onOverflow once; later writes are dropped.
//
// Write always reports the whole chunk as consumed so that io.Copy and
// exec.Cmd never see a short write.
type Capture struct {
	mu         sync.Mutex
	limit      int
	chunks     [][]byte
	total      int
	overflow   bool
	sealed     bool
	data       []byte
	onOverflow func()
}

// New returns a Capture holding at most limit bytes. A negative limit is
// treated as zero. onOverflow may be nil.
func New(limit int, onOverflow func()) *Capture {
	return &Capture{limit: max(limit, 0), onOverflow: onOverflow}
}

func (c *Capture) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if c.sealed || c.overflow {
		c.mu.Unlock()
		return n, nil
	}
	remaining := max(0, c.limit-c.total)
	if n <= remaining {
		c.chunks = append(c.chunks, bytes.Clone(p))
		c.total += n
		c.mu.Unlock()
		return n, nil
	}

	if remaining > 0 {
		c.chunks = append(c.chunks, bytes.Clone(p[:remaining]))
	}
	c.total = c.limit
	c.overflow = true
	fn := c.onOverflow
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return n, nil
}

// WriteString is Write for text chunks.
func (c *Capture) WriteString(s string) (int, error) {
	return c.Write([]byte(s))
}

// Len returns the number of bytes captured so far.
func (c *Capture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Limit returns the cap.
func (c *Capture) Limit() int { return c.limit }

// Overflowed reports whether a write exceeded the cap.
func (c *Capture) Overflowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflow
}

// Finalize joins the captured chunks. The first call seals the capture;
// later writes are dropped and later calls return the same slice.
func (c *Capture) Finalize() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sealed {
		c.sealed = true
		c.data = bytes.Join(c.chunks, nil)
		if c.data == nil {
			c.data = []byte{}
		}
		c.chunks = nil
	}
	return c.data
}

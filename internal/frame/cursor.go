package frame

import (
	"errors"
)

// DefaultCursorCapacity comfortably holds the largest possible UBX frame
// (8 + 65535 bytes) plus a maximum RTCM3 frame.
const DefaultCursorCapacity = 128 * 1024

// ErrCursorFull is returned by Append when the unread region plus the new
// bytes would exceed the cursor's capacity even after compaction.
var ErrCursorFull = errors.New("frame: cursor full")

// Cursor is an append-only, forward-only view over the most recently received
// receiver bytes. Bytes before the read position are never re-examined, which
// permits compaction. It is not safe for concurrent use; the receiver link
// owns it exclusively and discards it on reconnect.
type Cursor struct {
	buf []byte
	pos int
	cap int
}

// NewCursor returns a cursor bounded to capacity bytes. A capacity <= 0
// selects DefaultCursorCapacity.
func NewCursor(capacity int) *Cursor {
	if capacity <= 0 {
		capacity = DefaultCursorCapacity
	}
	return &Cursor{
		buf: make([]byte, 0, 4096),
		cap: capacity,
	}
}

// Append adds newly received bytes behind the write position, compacting
// consumed leading bytes first when space is needed.
func (c *Cursor) Append(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if len(c.buf)+len(p) > c.cap {
		c.Compact()
	}
	if len(c.buf)+len(p) > c.cap {
		return ErrCursorFull
	}
	c.buf = append(c.buf, p...)
	return nil
}

// Unread returns the bytes between the read position and the write position.
// The slice aliases the cursor's buffer and is invalidated by Append, Advance
// and Compact.
func (c *Cursor) Unread() []byte {
	return c.buf[c.pos:]
}

// Buffered reports how many unread bytes are available.
func (c *Cursor) Buffered() int {
	return len(c.buf) - c.pos
}

// Advance moves the read position forward by n bytes. n is clamped to the
// number of buffered bytes.
func (c *Cursor) Advance(n int) {
	if n <= 0 {
		return
	}
	c.pos += n
	if c.pos > len(c.buf) {
		c.pos = len(c.buf)
	}
}

// Compact drops fully-consumed leading bytes. Bytes between the read position
// and the write position are preserved verbatim.
func (c *Cursor) Compact() {
	if c.pos == 0 {
		return
	}
	n := copy(c.buf, c.buf[c.pos:])
	c.buf = c.buf[:n]
	c.pos = 0
}

// Reset discards all buffered bytes.
func (c *Cursor) Reset() {
	c.buf = c.buf[:0]
	c.pos = 0
}

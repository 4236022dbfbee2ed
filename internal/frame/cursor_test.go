package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestCursor_CompactPreservesUnread(t *testing.T) {
	c := NewCursor(0)
	if err := c.Append([]byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	c.Advance(2)
	c.Compact()

	if got := c.Unread(); !bytes.Equal(got, []byte{3, 4, 5}) {
		t.Fatalf("unread=%v want [3 4 5]", got)
	}
	if err := c.Append([]byte{6}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if got := c.Unread(); !bytes.Equal(got, []byte{3, 4, 5, 6}) {
		t.Fatalf("unread=%v want [3 4 5 6]", got)
	}
}

func TestCursor_AppendCompactsWhenNeeded(t *testing.T) {
	c := NewCursor(8)
	if err := c.Append([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	c.Advance(4)

	// Fits only because the 4 consumed bytes can be dropped.
	if err := c.Append([]byte{7, 8, 9, 10}); err != nil {
		t.Fatalf("Append() after compaction error: %v", err)
	}
	if got := c.Unread(); !bytes.Equal(got, []byte{5, 6, 7, 8, 9, 10}) {
		t.Fatalf("unread=%v", got)
	}
}

func TestCursor_AppendFullWhenUnreadExceedsCapacity(t *testing.T) {
	c := NewCursor(4)
	if err := c.Append([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := c.Append([]byte{5}); !errors.Is(err, ErrCursorFull) {
		t.Fatalf("err=%v want ErrCursorFull", err)
	}
	// Unread bytes stay intact after a rejected append.
	if got := c.Unread(); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("unread=%v", got)
	}
}

func TestCursor_AdvanceClamps(t *testing.T) {
	c := NewCursor(0)
	if err := c.Append([]byte{1, 2}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	c.Advance(10)
	if c.Buffered() != 0 {
		t.Fatalf("buffered=%d want 0", c.Buffered())
	}
}

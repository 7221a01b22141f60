package output

import (
	"bytes"
)

// DefaultMaxTextSize limits the flattened text of a single print call (1MB).
// Prevents a runaway listener from pushing unbounded text through one slot.
const DefaultMaxTextSize = 1 * 1024 * 1024

// truncationMarker is appended to flattened text that hit the limit.
const truncationMarker = "\n... [output truncated]"

// BoundedBuffer is a bytes.Buffer wrapper that limits the size of written data.
// It implements io.Writer.
type BoundedBuffer struct {
	buffer    bytes.Buffer
	limit     int
	Truncated bool
}

// NewBoundedBuffer creates a new BoundedBuffer with the specified limit.
func NewBoundedBuffer(limit int) *BoundedBuffer {
	return &BoundedBuffer{
		limit: limit,
	}
}

// Write implements io.Writer.
// It writes data up to the limit and then silently discards any additional data.
// The Truncated field is set to true if any data was discarded.
func (b *BoundedBuffer) Write(p []byte) (n int, err error) {
	if b.buffer.Len() >= b.limit {
		if len(p) > 0 {
			b.Truncated = true
		}
		return len(p), nil // Pretend we wrote it all to satisfy io.Writer contract
	}

	remaining := b.limit - b.buffer.Len()
	if len(p) > remaining {
		b.Truncated = true
		n, err = b.buffer.Write(p[:remaining])
		if err != nil {
			return n, err
		}
		return len(p), nil
	}

	return b.buffer.Write(p)
}

// WriteString implements io.StringWriter.
func (b *BoundedBuffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// String returns the buffer contents, marked when truncated.
func (b *BoundedBuffer) String() string {
	if b.Truncated {
		return b.buffer.String() + truncationMarker
	}
	return b.buffer.String()
}

// Reset resets the buffer and clears the Truncated flag.
func (b *BoundedBuffer) Reset() {
	b.buffer.Reset()
	b.Truncated = false
}

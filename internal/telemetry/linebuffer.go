package telemetry

import (
	"bytes"
	"strings"
)

// MaxLineLength bounds how many bytes are held while waiting for a line
// terminator. A longer run without '\n' is discarded.
const MaxLineLength = 4096

// LineBuffer accumulates raw serial bytes and yields complete lines.
// Partial lines are retained across Write calls. It is not safe for
// concurrent use.
type LineBuffer struct {
	buf     []byte
	dropped int
}

// Write appends raw bytes. It never fails.
func (b *LineBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > MaxLineLength && bytes.IndexByte(b.buf, '\n') < 0 {
		b.dropped += len(b.buf)
		b.buf = b.buf[:0]
	}
	return len(p), nil
}

// NextLine returns the next complete, non-blank line with surrounding
// whitespace (including '\r') trimmed. ok is false when no complete line is
// buffered.
func (b *LineBuffer) NextLine() (line string, ok bool) {
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			return "", false
		}
		raw := string(b.buf[:i])
		b.buf = b.buf[i+1:]

		if line = strings.TrimSpace(raw); line != "" {
			return line, true
		}
	}
}

// Buffered returns the number of bytes held for an incomplete line.
func (b *LineBuffer) Buffered() int {
	return len(b.buf)
}

// Dropped returns the number of bytes discarded for exceeding MaxLineLength.
func (b *LineBuffer) Dropped() int {
	return b.dropped
}

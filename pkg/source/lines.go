package source

import (
	"bytes"
	"errors"
	"strings"
)

// MaxLineSize bounds a single line; a longer run of bytes without a newline means framing was lost.
const MaxLineSize = 64 * 1024

// ErrLineTooLong is returned when no line terminator was seen within MaxLineSize bytes.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// lineBuffer reassembles lines from arbitrary read chunks.
type lineBuffer struct {
	data []byte
	max  int
}

func (b *lineBuffer) push(p []byte) error {
	b.data = append(b.data, p...)
	if len(b.data) > b.max && bytes.IndexByte(b.data, '\n') < 0 {
		b.data = b.data[:0]
		return ErrLineTooLong
	}
	return nil
}

// pop returns the next complete line, if any.
func (b *lineBuffer) pop() (string, bool) {
	i := bytes.IndexByte(b.data, '\n')
	if i < 0 {
		return "", false
	}
	line := cleanLine(b.data[:i])
	b.data = b.data[i+1:]
	return line, true
}

// flush returns a trailing unterminated line at end of stream.
func (b *lineBuffer) flush() (string, bool) {
	if len(b.data) == 0 {
		return "", false
	}
	line := cleanLine(b.data)
	b.data = b.data[:0]
	return line, true
}

func cleanLine(raw []byte) string {
	raw = bytes.TrimRight(raw, "\r")
	return strings.ToValidUTF8(string(raw), "\uFFFD")
}

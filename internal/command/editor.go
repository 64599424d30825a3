package command

import "unicode/utf8"

// MaxLineLength bounds an input line; further bytes are ignored.
const MaxLineLength = 256

const (
	keyBackspace = 0x08
	keyDelete    = 0x7f
)

// LineEditor assembles a line from raw input bytes.
type LineEditor struct {
	buf []byte
}

// Feed adds one byte. It returns the completed line and true when b is a
// line feed; an empty completed line is the idle signal. Carriage returns
// are ignored so both "\n" and "\r\n" terminate a line.
func (e *LineEditor) Feed(b byte) (string, bool) {
	switch {
	case b == '\n':
		line := string(e.buf)
		e.buf = e.buf[:0]
		return line, true
	case b == '\r':
	case b == keyBackspace || b == keyDelete:
		if len(e.buf) > 0 {
			_, size := utf8.DecodeLastRune(e.buf)
			e.buf = e.buf[:len(e.buf)-size]
		}
	case b < 0x20:
		// other control characters
	default:
		if len(e.buf) < MaxLineLength {
			e.buf = append(e.buf, b)
		}
	}
	return "", false
}

// Pending returns the partial line.
func (e *LineEditor) Pending() string { return string(e.buf) }

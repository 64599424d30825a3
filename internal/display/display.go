// Package display provides a small line display: a fixed rows by cols
// character buffer in the manner of a character LCD, rendered by a
// pluggable Renderer (a terminal window on a host, nothing in tests).
package display

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// Default geometry of a 16x2 character LCD.
const (
	DefaultCols = 16
	DefaultRows = 2
)

// Renderer draws the full buffer contents. Render is called with a copy of
// the rows after every change.
type Renderer interface {
	Render(rows []string)
}

// Buffer is a rows by cols character display. Writes past the last row or
// column are clipped.
type Buffer struct {
	mu       sync.Mutex
	cols     int
	rows     []string
	renderer Renderer
}

// NewBuffer creates a blank display. Zero or negative sizes use the defaults.
func NewBuffer(cols, rows int, r Renderer) *Buffer {
	if cols <= 0 {
		cols = DefaultCols
	}
	if rows <= 0 {
		rows = DefaultRows
	}
	b := &Buffer{cols: cols, rows: make([]string, rows), renderer: r}
	for i := range b.rows {
		b.rows[i] = strings.Repeat(" ", cols)
	}
	return b
}

// Cols returns the display width in characters.
func (b *Buffer) Cols() int { return b.cols }

// Rows returns the display height in lines.
func (b *Buffer) Rows() int { return len(b.rows) }

// PrintLine replaces row with text, padded with spaces or truncated to the
// display width. Out of range rows are ignored.
func (b *Buffer) PrintLine(row int, text string) {
	b.mu.Lock()
	if row < 0 || row >= len(b.rows) {
		b.mu.Unlock()
		return
	}
	b.rows[row] = fit(text, b.cols)
	snap := b.snapshot()
	b.mu.Unlock()
	b.render(snap)
}

// Print writes text starting at col on row, overwriting what is there.
func (b *Buffer) Print(col, row int, text string) {
	b.mu.Lock()
	if row < 0 || row >= len(b.rows) || col < 0 || col >= b.cols {
		b.mu.Unlock()
		return
	}
	line := []rune(b.rows[row])
	for i, r := range []rune(text) {
		if col+i >= b.cols {
			break
		}
		line[col+i] = r
	}
	b.rows[row] = string(line)
	snap := b.snapshot()
	b.mu.Unlock()
	b.render(snap)
}

// Clear blanks every row.
func (b *Buffer) Clear() {
	b.mu.Lock()
	for i := range b.rows {
		b.rows[i] = strings.Repeat(" ", b.cols)
	}
	snap := b.snapshot()
	b.mu.Unlock()
	b.render(snap)
}

// Lines returns a copy of the rows.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

// Line returns row without trailing padding.
func (b *Buffer) Line(row int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if row < 0 || row >= len(b.rows) {
		return ""
	}
	return strings.TrimRight(b.rows[row], " ")
}

func (b *Buffer) snapshot() []string {
	out := make([]string, len(b.rows))
	copy(out, b.rows)
	return out
}

func (b *Buffer) render(rows []string) {
	if b.renderer != nil {
		b.renderer.Render(rows)
	}
}

func fit(text string, cols int) string {
	n := utf8.RuneCountInString(text)
	if n >= cols {
		return string([]rune(text)[:cols])
	}
	return text + strings.Repeat(" ", cols-n)
}

// Package protocol converts between LSP positions and byte offsets in document content.
package protocol

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"go.lsp.dev/protocol"
)

// TextOffsetMapper converts UTF-16 based protocol positions into byte offsets for a fixed piece of content.
type TextOffsetMapper struct {
	content   []byte
	lineStart []int
}

// NewTextOffsetMapper creates a mapper for the given content.
func NewTextOffsetMapper(content []byte) *TextOffsetMapper {
	lineStart := make([]int, 1, bytes.Count(content, []byte("\n"))+1)
	for i, b := range content {
		if b == '\n' {
			lineStart = append(lineStart, i+1)
		}
	}
	return &TextOffsetMapper{content: content, lineStart: lineStart}
}

// LineCount returns the number of lines, counting a trailing partial line.
func (m *TextOffsetMapper) LineCount() int {
	return len(m.lineStart)
}

// PositionOffset converts a protocol (UTF-16) position to a byte offset.
func (m *TextOffsetMapper) PositionOffset(p protocol.Position) (int, error) {
	line := int(p.Line)
	if line > len(m.lineStart) {
		return 0, fmt.Errorf("line number %d out of range 0-%d", p.Line, len(m.lineStart))
	} else if line == len(m.lineStart) {
		if p.Character == 0 {
			return len(m.content), nil
		}
		return 0, fmt.Errorf("column is beyond end of file")
	}

	offset := m.lineStart[line]
	rest := m.content[offset:]
	col8 := 0
	for col16 := 0; col16 < int(p.Character); col16++ {
		r, sz := utf8.DecodeRune(rest)
		switch {
		case sz == 0:
			return 0, fmt.Errorf("column is beyond end of file")
		case r == '\n':
			return 0, fmt.Errorf("column is beyond end of line")
		case sz == 1 && r == utf8.RuneError:
			return 0, fmt.Errorf("buffer contains invalid UTF-8 text")
		}
		rest = rest[sz:]
		if r >= 0x10000 {
			// Surrogate pair; a position between the two halves rounds down.
			col16++
			if col16 == int(p.Character) {
				break
			}
		}
		col8 += sz
	}
	return offset + col8, nil
}

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.lsp.dev/protocol"
)

func TestPositionOffset(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		pos     protocol.Position
		offset  int
		wantErr bool
	}{
		{
			name:   "start of second line",
			text:   "sample\ncontent\n",
			pos:    protocol.Position{Line: 1, Character: 0},
			offset: 7,
		},
		{
			name:   "middle of line",
			text:   "sample\ncontent\n",
			pos:    protocol.Position{Line: 1, Character: 3},
			offset: 10,
		},
		{
			name:    "invalid line number",
			text:    "sample\ncontent\n",
			pos:     protocol.Position{Line: 15, Character: 0},
			wantErr: true,
		},
		{
			name:   "end of file",
			text:   "sample\ncontent\n",
			pos:    protocol.Position{Line: 2, Character: 0},
			offset: 15,
		},
		{
			name:   "one past last line",
			text:   "sample\ncontent\n",
			pos:    protocol.Position{Line: 3, Character: 0},
			offset: 15,
		},
		{
			name:    "beyond end of file",
			text:    "sample\ncontent\n",
			pos:     protocol.Position{Line: 3, Character: 1},
			wantErr: true,
		},
		{
			name:    "beyond end of line",
			text:    "ab\ncd",
			pos:     protocol.Position{Line: 0, Character: 5},
			wantErr: true,
		},
		{
			name:   "multi byte characters",
			text:   "héllo",
			pos:    protocol.Position{Line: 0, Character: 2},
			offset: 3,
		},
		{
			name:   "surrogate pair",
			text:   "a😀b",
			pos:    protocol.Position{Line: 0, Character: 3},
			offset: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewTextOffsetMapper([]byte(tt.text))
			offset, err := m.PositionOffset(tt.pos)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.offset, offset)
		})
	}
}

func TestLineCount(t *testing.T) {
	assert.Equal(t, 1, NewTextOffsetMapper(nil).LineCount())
	assert.Equal(t, 3, NewTextOffsetMapper([]byte("a\nb\n")).LineCount())
	assert.Equal(t, 2, NewTextOffsetMapper([]byte("a\nb")).LineCount())
}

package scrollsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOffsetForLine(t *testing.T) {
	markers := NewMarkers([]Marker{
		{Line: 10, Offset: 100},
		{Line: 20, Offset: 300},
		{Line: 30, Offset: 500},
	})

	tests := []struct {
		name string
		line int
		want float64
	}{
		{name: "midpoint", line: 15, want: 200},
		{name: "clamps before first marker", line: 5, want: 100},
		{name: "clamps after last marker", line: 35, want: 500},
		{name: "exact marker", line: 20, want: 300},
		{name: "first marker", line: 10, want: 100},
		{name: "last marker", line: 30, want: 500},
		{name: "quarter", line: 22, want: 340},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := markers.OffsetForLine(tt.line)
			assert.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestOffsetForLineIsMonotonic(t *testing.T) {
	markers := NewMarkers([]Marker{
		{Line: 3, Offset: 0},
		{Line: 10, Offset: 120},
		{Line: 11, Offset: 121},
		{Line: 40, Offset: 900},
	})

	prev := -1.0
	for line := 0; line <= 50; line++ {
		got, ok := markers.OffsetForLine(line)
		assert.True(t, ok)
		assert.GreaterOrEqual(t, got, prev, "line %d", line)
		prev = got
	}
}

func TestLineForOffset(t *testing.T) {
	markers := NewMarkers([]Marker{
		{Line: 30, Offset: 500},
		{Line: 10, Offset: 100},
		{Line: 20, Offset: 300},
	})

	tests := []struct {
		name   string
		offset float64
		want   int
	}{
		{name: "midpoint", offset: 200, want: 15},
		{name: "clamps above", offset: 0, want: 10},
		{name: "clamps below", offset: 900, want: 30},
		{name: "exact", offset: 300, want: 20},
		{name: "rounds", offset: 229, want: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := markers.LineForOffset(tt.offset)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	markers := NewMarkers([]Marker{
		{Line: 1, Offset: 0},
		{Line: 12, Offset: 400},
		{Line: 60, Offset: 1600},
	})

	for line := 1; line <= 60; line++ {
		offset, ok := markers.OffsetForLine(line)
		assert.True(t, ok)
		got, ok := markers.LineForOffset(offset)
		assert.True(t, ok)
		assert.Equal(t, line, got)
	}
}

func TestNoMarkers(t *testing.T) {
	var markers Markers
	_, ok := markers.OffsetForLine(3)
	assert.False(t, ok)
	_, ok = markers.LineForOffset(3)
	assert.False(t, ok)
}

func TestNewMarkersDeduplicates(t *testing.T) {
	input := []Marker{
		{Line: 5, Offset: 50},
		{Line: 1, Offset: 0},
		{Line: 5, Offset: 70},
	}
	markers := NewMarkers(input)

	assert.Equal(t, Markers{{Line: 1, Offset: 0}, {Line: 5, Offset: 50}}, markers)
	assert.Equal(t, Marker{Line: 5, Offset: 50}, input[0], "input is not modified")
}

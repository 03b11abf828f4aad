// Package scrollsync maps source line numbers to vertical offsets in rendered output and back,
// interpolating between the scroll markers the build tool embeds in each page.
package scrollsync

import (
	"math"
	"sort"
)

// Marker anchors a source line to the vertical position of the rendered element generated from it.
type Marker struct {
	Line   int     `json:"line"`
	Offset float64 `json:"offset"`
}

// Markers is a set of markers for one document, sorted by line.
type Markers []Marker

// NewMarkers sorts the given markers by line. When several markers share a line the first one wins.
func NewMarkers(markers []Marker) Markers {
	sorted := make(Markers, len(markers))
	copy(sorted, markers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Line < sorted[j].Line })

	out := sorted[:0]
	for i, m := range sorted {
		if i > 0 && m.Line == out[len(out)-1].Line {
			continue
		}
		out = append(out, m)
	}
	return out
}

// OffsetForLine returns the rendered offset for a source line. Lines outside the marker range clamp to the first or last marker.
// ok is false when there are no markers.
func (m Markers) OffsetForLine(line int) (offset float64, ok bool) {
	if len(m) == 0 {
		return 0, false
	}

	// Index of the least marker with Line >= line.
	i := sort.Search(len(m), func(i int) bool { return m[i].Line >= line })
	switch {
	case i == len(m):
		return m[len(m)-1].Offset, true
	case m[i].Line == line || i == 0:
		return m[i].Offset, true
	}

	prev, cur := m[i-1], m[i]
	t := float64(line-prev.Line) / float64(cur.Line-prev.Line)
	return prev.Offset + t*(cur.Offset-prev.Offset), true
}

// LineForOffset returns the source line estimated for a rendered offset, rounded to the nearest line.
// Offsets outside the marker range clamp to the first or last marker. ok is false when there are no markers.
func (m Markers) LineForOffset(offset float64) (line int, ok bool) {
	if len(m) == 0 {
		return 0, false
	}

	// Offsets are non-decreasing in line order for a well-formed page.
	i := sort.Search(len(m), func(i int) bool { return m[i].Offset >= offset })
	switch {
	case i == len(m):
		return m[len(m)-1].Line, true
	case m[i].Offset == offset || i == 0:
		return m[i].Line, true
	}

	prev, cur := m[i-1], m[i]
	t := (offset - prev.Offset) / (cur.Offset - prev.Offset)
	return int(math.Round(float64(prev.Line) + t*float64(cur.Line-prev.Line))), true
}

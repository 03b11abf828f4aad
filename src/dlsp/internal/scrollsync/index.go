package scrollsync

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultIndexSize bounds the number of documents tracked by an Index.
const DefaultIndexSize = 256

// Index holds the most recently reported markers for each document uri.
// Least recently used documents are evicted once the index is full. It is safe for concurrent use.
type Index struct {
	cache *lru.Cache[string, Markers]
}

// NewIndex creates an index holding markers for up to size documents.
func NewIndex(size int) (*Index, error) {
	if size <= 0 {
		size = DefaultIndexSize
	}
	cache, err := lru.New[string, Markers](size)
	if err != nil {
		return nil, fmt.Errorf("creating marker index: %w", err)
	}
	return &Index{cache: cache}, nil
}

// Update replaces the markers for the given document.
func (x *Index) Update(uri string, markers []Marker) {
	x.cache.Add(uri, NewMarkers(markers))
}

// Get returns the markers for a document, if any have been reported.
func (x *Index) Get(uri string) (Markers, bool) {
	return x.cache.Get(uri)
}

// Remove forgets the markers for a document.
func (x *Index) Remove(uri string) {
	x.cache.Remove(uri)
}

// OffsetForLine maps a line in the given document to a rendered offset.
func (x *Index) OffsetForLine(uri string, line int) (float64, bool) {
	markers, ok := x.cache.Get(uri)
	if !ok {
		return 0, false
	}
	return markers.OffsetForLine(line)
}

// LineForOffset maps a rendered offset in the given document back to a source line.
func (x *Index) LineForOffset(uri string, offset float64) (int, bool) {
	markers, ok := x.cache.Get(uri)
	if !ok {
		return 0, false
	}
	return markers.LineForOffset(offset)
}

package preview

import (
	"encoding/json"

	"github.com/uber/doc-lsp/src/dlsp/internal/scrollsync"
	"go.lsp.dev/uri"
)

// Messages exchanged with preview pages over the WebSocket.
const (
	// MethodViewOpen is sent by a page when it shows the output of a source document.
	MethodViewOpen = "view/open"
	// MethodViewMarkers is sent by a page with the scroll markers of the document it shows.
	MethodViewMarkers = "view/markers"
	// MethodViewScroll is sent by a page when it is scrolled, and to a page to scroll it.
	MethodViewScroll = "view/scroll"
	// MethodViewReload asks a page to reload after a successful build.
	MethodViewReload = "view/reload"
)

type message struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type outbound struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type viewOpenParams struct {
	URI uri.URI `json:"uri"`
}

type viewMarkersParams struct {
	URI     uri.URI             `json:"uri"`
	Markers []scrollsync.Marker `json:"markers"`
}

// viewScrollParams carries the viewer position in a page. Line is set when sent to a page.
type viewScrollParams struct {
	URI    uri.URI  `json:"uri"`
	Line   int      `json:"line"`
	Offset *float64 `json:"offset,omitempty"`
}

// pageConfig is served to preview pages so their script can find the WebSocket.
type pageConfig struct {
	ID     string `json:"id"`
	WSPort int    `json:"wsPort"`
	WSPath string `json:"wsPath"`
}

package entity

import (
	"go.lsp.dev/uri"
)

// Custom methods handled by the daemon in addition to the LSP protocol.
const (
	MethodRestart             = "dlsp/restart"
	MethodPreview             = "dlsp/preview"
	MethodClients             = "dlsp/clients"
	MethodEditorScroll        = "editor/scroll"
	MethodRequestFullShutdown = "dlsp/requestFullShutdown"
)

// ClientRef identifies a client in a command.
type ClientRef struct {
	ID string `json:"id"`
}

// RestartParams lists clients to restart. An empty list restarts every client.
type RestartParams struct {
	Clients []ClientRef `json:"clients,omitempty"`
}

// IDs returns the referenced client ids.
func (p RestartParams) IDs() []string {
	ids := make([]string, 0, len(p.Clients))
	for _, c := range p.Clients {
		ids = append(ids, c.ID)
	}
	return ids
}

// PreviewParams are the optional parameters of MethodPreview.
type PreviewParams struct {
	Show bool    `json:"show,omitempty"`
	URI  uri.URI `json:"uri,omitempty"`
}

// PreviewResult is returned from MethodPreview.
type PreviewResult struct {
	Port int `json:"port"`
}

// ScrollParams carries a scroll position by source line, exchanged between the editor and the daemon.
type ScrollParams struct {
	URI  uri.URI `json:"uri"`
	Line int     `json:"line"`
}

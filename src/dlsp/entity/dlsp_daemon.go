// Package entity contains the domain logic for the dlsp-daemon service.
package entity

import (
	"github.com/gofrs/uuid"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

type keyType string

// SessionContextKey indicates the key to be used to identify the session UUID in the context.
const SessionContextKey keyType = "SessionUUID"

// Session entity representing a single IDE session.
type Session struct {
	UUID             uuid.UUID                  `json:"uuid" zap:"uuid"`
	InitializeParams *protocol.InitializeParams `json:"-" zap:"-"`
	Conn             *jsonrpc2.Conn             `json:"-" zap:"-"`
	// WorkspaceFolders holds the absolute filesystem paths of the folders opened in the IDE.
	WorkspaceFolders []string `json:"workspaceFolders" zap:"workspaceFolders"`
	// InitializationOptions are the startup parameters supplied by the IDE, under the "dlsp" section.
	InitializationOptions map[string]any `json:"-" zap:"-"`
	Enabled               bool           `json:"enabled" zap:"enabled"`
}

// ClientName identifies the name that the will be set in the initialization parameters for a given client.
type ClientName string

const (
	// ClientNameVSCode is the name of the VSCode client.
	ClientNameVSCode ClientName = "Visual Studio Code"
	// ClientNameCursor is the name of the Cursor client.
	ClientNameCursor ClientName = "Cursor"
)

// IsVSCodeBased returns true if the client is a VS Code based client.
func (c ClientName) IsVSCodeBased() bool {
	return c == ClientNameVSCode || c == ClientNameCursor
}

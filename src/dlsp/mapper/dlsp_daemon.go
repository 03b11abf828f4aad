package mapper

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/gofrs/uuid"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	"github.com/uber/doc-lsp/src/dlsp/internal/errors"
	"github.com/uber/doc-lsp/src/dlsp/model"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// SessionToModel maps a Session entity to its model equivalent.
func SessionToModel(f *entity.Session) *model.Session {
	return &model.Session{
		UUID:                  f.UUID,
		InitializeParams:      f.InitializeParams,
		Conn:                  f.Conn,
		WorkspaceFolders:      f.WorkspaceFolders,
		InitializationOptions: f.InitializationOptions,
		Enabled:               f.Enabled,
	}
}

// ModelToSession maps a model Session to its entity equivalent.
func ModelToSession(f *model.Session) (*entity.Session, error) {
	return &entity.Session{
		UUID:                  f.UUID,
		InitializeParams:      f.InitializeParams,
		Conn:                  f.Conn,
		WorkspaceFolders:      f.WorkspaceFolders,
		InitializationOptions: f.InitializationOptions,
		Enabled:               f.Enabled,
	}, nil
}

// UUIDToSession initializes a new Session entity with the assigned uuid and connection.
func UUIDToSession(u uuid.UUID, c *jsonrpc2.Conn) *entity.Session {
	return &entity.Session{
		UUID:    u,
		Conn:    c,
		Enabled: true,
	}
}

// ContextToSessionUUID extracts the UUID from a context
func ContextToSessionUUID(c context.Context) (uuid.UUID, error) {
	s, ok := c.Value(entity.SessionContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, &errors.NoSessionFoundError{}
	}
	return s, nil
}

// SessionUUIDToContext returns a context that routes outbound IDE calls to the given session.
func SessionUUIDToContext(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, entity.SessionContextKey, id)
}

// URIToPath converts a file URI into a cleaned absolute filesystem path.
func URIToPath(u uri.URI) (string, error) {
	if u == "" {
		return "", fmt.Errorf("empty document uri")
	}
	parsed, err := url.ParseRequestURI(string(u))
	if err != nil {
		return "", fmt.Errorf("parsing uri %q: %w", u, err)
	} else if parsed.Scheme != uri.FileScheme {
		return "", fmt.Errorf("uri %q is not a file uri", u)
	}
	path := u.Filename()
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("uri %q does not refer to an absolute path", u)
	}
	return filepath.Clean(path), nil
}

// WorkspaceFoldersToPaths converts workspace folders into filesystem paths, skipping folders that are not file URIs.
func WorkspaceFoldersToPaths(folders []protocol.WorkspaceFolder) []string {
	paths := make([]string, 0, len(folders))
	for _, folder := range folders {
		path, err := URIToPath(uri.URI(folder.URI))
		if err != nil {
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

// InitializeParamsToWorkspaceFolders returns the folders opened by the IDE, falling back to the root uri for older clients.
func InitializeParamsToWorkspaceFolders(params *protocol.InitializeParams) []string {
	if params == nil {
		return nil
	}
	if len(params.WorkspaceFolders) > 0 {
		return WorkspaceFoldersToPaths(params.WorkspaceFolders)
	}
	if params.RootURI != "" {
		if path, err := URIToPath(params.RootURI); err == nil {
			return []string{path}
		}
	}
	return nil
}

// InitializationOptionsToMap extracts the "dlsp" section of the initialization options.
// Options without that section are used as is.
func InitializationOptionsToMap(options interface{}) map[string]any {
	m, ok := options.(map[string]any)
	if !ok {
		return nil
	}
	if section, ok := m["dlsp"].(map[string]any); ok {
		return map[string]any{"dlsp": section}
	}
	return m
}

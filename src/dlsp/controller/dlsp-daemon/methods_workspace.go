package dlspdaemon

import (
	"context"
	"fmt"

	dlspplugin "github.com/uber/doc-lsp/src/dlsp/entity/dlsp-plugin"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"go.lsp.dev/protocol"
)

func (c *controller) DidChangeConfiguration(ctx context.Context, params *protocol.DidChangeConfigurationParams) error {
	call := func(ctx context.Context, m *dlspplugin.Methods) {
		if err := m.DidChangeConfiguration(ctx, params); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}
	return c.executePluginMethods(ctx, protocol.MethodWorkspaceDidChangeConfiguration, call, call)
}

// DidChangeWorkspaceFolders updates the folders of the session before the plugins see the change.
func (c *controller) DidChangeWorkspaceFolders(ctx context.Context, params *protocol.DidChangeWorkspaceFoldersParams) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("getting session from context: %w", err)
	}

	removed := map[string]struct{}{}
	for _, p := range mapper.WorkspaceFoldersToPaths(params.Event.Removed) {
		removed[p] = struct{}{}
	}
	folders := []string{}
	seen := map[string]struct{}{}
	for _, p := range append(s.WorkspaceFolders, mapper.WorkspaceFoldersToPaths(params.Event.Added)...) {
		if _, ok := removed[p]; ok {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		folders = append(folders, p)
	}
	s.WorkspaceFolders = folders
	enabling := !s.Enabled && len(folders) > 0
	if enabling {
		s.Enabled = true
	}
	if err := c.sessions.Set(ctx, s); err != nil {
		return fmt.Errorf("setting updated session state: %w", err)
	}
	if enabling {
		// A session started without folders has no plugins yet.
		if err := c.registerSessionPlugins(ctx); err != nil {
			return fmt.Errorf("registering session plugins: %w", err)
		}
	}

	call := func(ctx context.Context, m *dlspplugin.Methods) {
		if err := m.DidChangeWorkspaceFolders(ctx, params); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}
	return c.executePluginMethods(ctx, protocol.MethodWorkspaceDidChangeWorkspaceFolders, call, call)
}

// ExecuteCommand runs the built-in dlsp commands, then hands the request to the plugins.
func (c *controller) ExecuteCommand(ctx context.Context, params *protocol.ExecuteCommandParams) (interface{}, error) {
	result, err := c.executeBuiltinCommand(ctx, params)
	if err != nil {
		return nil, err
	}

	call := func(ctx context.Context, m *dlspplugin.Methods) {
		if err := m.ExecuteCommand(ctx, params); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}
	if err := c.executePluginMethods(ctx, protocol.MethodWorkspaceExecuteCommand, call, call); err != nil {
		return nil, err
	}
	return result, nil
}

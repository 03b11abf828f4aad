package registry

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/gofrs/uuid"
	buildagent "github.com/uber/doc-lsp/src/dlsp/controller/build-agent"
	configresolver "github.com/uber/doc-lsp/src/dlsp/controller/config-resolver"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	dlsperrors "github.com/uber/doc-lsp/src/dlsp/internal/errors"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func (c *controller) initialize(ctx context.Context, params *protocol.InitializeParams, result *protocol.InitializeResult) error {
	mapper.InitializeResultEnsureWorkspaceFolders(result)
	return nil
}

// initialized creates a client for every workspace folder of the session.
func (c *controller) initialized(ctx context.Context, params *protocol.InitializedParams) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return err
	}
	return c.createAll(ctx, s.WorkspaceFolders)
}

func (c *controller) createAll(ctx context.Context, roots []string) error {
	var errs error
	for _, root := range roots {
		if _, err := c.GetOrCreate(ctx, root); err != nil {
			c.logger.Warnw("starting build agent", "root", root, zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (c *controller) shutdown(ctx context.Context) error {
	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return err
	}
	return c.release(ctx, id)
}

func (c *controller) endSession(ctx context.Context, id uuid.UUID) error {
	return c.release(ctx, id)
}

func (c *controller) didOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	_, err := c.clientFor(ctx, params.TextDocument.URI)
	return err
}

func (c *controller) didChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	return c.requestBuild(ctx, params.TextDocument.URI, entity.OptionBuildOnChange, ReasonDidChange)
}

func (c *controller) didSave(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error {
	return c.requestBuild(ctx, params.TextDocument.URI, entity.OptionBuildOnSave, ReasonDidSave)
}

// requestBuild asks for a build of the project containing the document, if the option allows it.
func (c *controller) requestBuild(ctx context.Context, u uri.URI, option string, reason string) error {
	client, err := c.clientFor(ctx, u)
	if err != nil || client == nil {
		return err
	}
	if !client.Config().Bool(option) {
		return nil
	}
	decision := c.scheduler.RequestBuild(client, reason)
	c.logger.Debugw("build requested", "client", client.ID(), "reason", reason, "decision", decision.String())
	return nil
}

// didChangeWatchedFiles reconfigures projects whose configuration files changed and rebuilds the others.
func (c *controller) didChangeWatchedFiles(ctx context.Context, params *protocol.DidChangeWatchedFilesParams) error {
	var errs error
	builds := make(map[string]buildagent.Client)
	for _, change := range params.Changes {
		path, err := mapper.URIToPath(change.URI)
		if err != nil {
			continue
		}
		project, err := c.ProjectForURI(ctx, change.URI)
		if err != nil {
			continue
		}
		client := c.lookup(project.Root)
		if client == nil {
			continue
		}

		if isProjectFile(project, path) {
			errs = multierr.Append(errs, c.reconfigure(ctx, client))
			delete(builds, project.Root)
			continue
		}
		if client.Config().Bool(entity.OptionBuildOnSave) {
			builds[project.Root] = client
		}
	}

	for _, client := range builds {
		c.scheduler.RequestBuild(client, ReasonWatchedFiles)
	}
	return errs
}

// didChangeConfiguration re-resolves every client and restarts those whose configuration changed.
func (c *controller) didChangeConfiguration(ctx context.Context, params *protocol.DidChangeConfigurationParams) error {
	c.resolver.Invalidate()

	var errs error
	for _, client := range c.all() {
		errs = multierr.Append(errs, c.reconfigure(ctx, client))
	}
	return errs
}

// didChangeWorkspaceFolders runs after the session has been updated with the new folders.
func (c *controller) didChangeWorkspaceFolders(ctx context.Context, params *protocol.DidChangeWorkspaceFoldersParams) error {
	err := c.createAll(ctx, mapper.WorkspaceFoldersToPaths(params.Event.Added))
	if len(params.Event.Removed) > 0 {
		err = multierr.Append(err, c.release(ctx, uuid.Nil))
	}
	return err
}

// reconfigure restarts a client if its resolved configuration no longer matches the one it runs with.
func (c *controller) reconfigure(ctx context.Context, client buildagent.Client) error {
	cfg, err := c.resolver.ResolveProject(ctx, client.Project())
	if err != nil {
		return err
	}
	if cfg.Equal(client.Config()) {
		return nil
	}

	c.logger.Infow("configuration changed", "client", client.ID(), "root", client.Project().Root)
	return c.restartWith(ctx, client, cfg, ReasonConfigChanged)
}

// clientFor returns the client of the project containing a document. Documents outside every workspace folder have none.
func (c *controller) clientFor(ctx context.Context, u uri.URI) (buildagent.Client, error) {
	client, err := c.ClientForURI(ctx, u)
	if errors.Is(err, dlsperrors.NoProjectRootError) {
		return nil, nil
	}
	return client, err
}

func isProjectFile(project entity.Project, path string) bool {
	if filepath.Dir(path) != project.Root {
		return false
	}
	name := filepath.Base(path)
	for _, candidate := range configresolver.ProjectFileNames() {
		if name == candidate {
			return true
		}
	}
	return false
}

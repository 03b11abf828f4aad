// Package registry owns the build agent client of every project and relays their events to the editors.
package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	buildagent "github.com/uber/doc-lsp/src/dlsp/controller/build-agent"
	buildscheduler "github.com/uber/doc-lsp/src/dlsp/controller/build-scheduler"
	configresolver "github.com/uber/doc-lsp/src/dlsp/controller/config-resolver"
	docsync "github.com/uber/doc-lsp/src/dlsp/controller/doc-sync"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	dlspplugin "github.com/uber/doc-lsp/src/dlsp/entity/dlsp-plugin"
	ideclient "github.com/uber/doc-lsp/src/dlsp/gateway/ide-client"
	dlsperrors "github.com/uber/doc-lsp/src/dlsp/internal/errors"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"github.com/uber/doc-lsp/src/dlsp/repository/session"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	_nameKey = "registry"

	_actionRestart = "Restart"
)

// Reasons attached to the builds requested by the registry.
const (
	ReasonInitialized   = "initialized"
	ReasonDidSave       = "didSave"
	ReasonDidChange     = "didChange"
	ReasonWatchedFiles  = "didChangeWatchedFiles"
	ReasonRestart       = "restart"
	ReasonConfigChanged = "configChanged"
)

// BuildListener is notified of every completed build.
type BuildListener interface {
	BuildCompleted(client buildagent.Client, result entity.BuildResult)
}

// Controller is the single owner of the project root to client mapping.
type Controller interface {
	StartupInfo(ctx context.Context) (dlspplugin.PluginInfo, error)

	// GetOrCreate returns the client of a project root, creating and starting it on first use.
	// A client that fails to start is still registered, in Errored, and returned alongside the error.
	GetOrCreate(ctx context.Context, root string) (buildagent.Client, error)
	// ProjectForURI returns the project of a document: the longest workspace folder containing it.
	ProjectForURI(ctx context.Context, u uri.URI) (entity.Project, error)
	// ClientForURI returns the client of the project containing a document.
	ClientForURI(ctx context.Context, u uri.URI) (buildagent.Client, error)
	// Get returns a registered client by id.
	Get(id string) (buildagent.Client, error)
	// Find returns the client of a project root without creating one.
	Find(root string) (buildagent.Client, error)
	// Restart re-resolves the configuration of the given clients and restarts them, regardless of state.
	// No ids restarts every client.
	Restart(ctx context.Context, ids []string) error
	// Destroy tears down the client of a project root, if any.
	Destroy(ctx context.Context, root string) error
	// DestroyAll tears down every client in parallel.
	DestroyAll(ctx context.Context) error
	// Clients summarizes every registered client, ordered by root.
	Clients() []entity.ClientSummary
	// Subscribe registers a listener for completed builds.
	Subscribe(listener BuildListener)
}

// Params are inbound parameters to initialize a new registry.
type Params struct {
	fx.In

	Sessions   session.Repository
	IdeGateway ideclient.Gateway
	Resolver   configresolver.Resolver
	Factory    buildagent.Factory
	Scheduler  buildscheduler.Scheduler
	DocSync    docsync.Controller
	Lifecycle  fx.Lifecycle
	Logger     *zap.SugaredLogger
	Stats      tally.Scope
}

type controller struct {
	sessions   session.Repository
	ideGateway ideclient.Gateway
	resolver   configresolver.Resolver
	factory    buildagent.Factory
	scheduler  buildscheduler.Scheduler
	docSync    docsync.Controller
	logger     *zap.SugaredLogger
	stats      tally.Scope

	creating singleflight.Group

	mu        sync.RWMutex
	clients   map[string]buildagent.Client
	progress  map[string]protocol.ProgressToken
	listeners []BuildListener

	// interrupted holds the clients whose builds were cancelled by a crash.
	interrupted map[string]struct{}

	watcher    *fsnotify.Watcher
	watchDone  chan struct{}
	background sync.WaitGroup

	// ctx scopes outbound editor calls made outside of any request. It is cancelled on stop.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the registry. Every client is destroyed when the application stops.
func New(p Params) (Controller, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating project file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &controller{
		ctx:         ctx,
		cancel:      cancel,
		sessions:    p.Sessions,
		ideGateway:  p.IdeGateway,
		resolver:    p.Resolver,
		factory:     p.Factory,
		scheduler:   p.Scheduler,
		docSync:     p.DocSync,
		logger:      p.Logger.With("plugin", _nameKey),
		stats:       p.Stats.SubScope("clients"),
		clients:     make(map[string]buildagent.Client),
		progress:    make(map[string]protocol.ProgressToken),
		interrupted: make(map[string]struct{}),
		watcher:     watcher,
		watchDone:   make(chan struct{}),
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go c.watch()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := c.DestroyAll(ctx)
			c.cancel()
			c.scheduler.Wait()
			err = multierr.Append(err, c.watcher.Close())
			<-c.watchDone
			c.background.Wait()
			return err
		},
	})
	return c, nil
}

// StartupInfo returns PluginInfo for this controller.
func (c *controller) StartupInfo(ctx context.Context) (dlspplugin.PluginInfo, error) {
	priorities := map[string]dlspplugin.Priority{
		protocol.MethodInitialize:  dlspplugin.PriorityRegular,
		protocol.MethodInitialized: dlspplugin.PriorityAsync,
		protocol.MethodShutdown:    dlspplugin.PriorityRegular,

		protocol.MethodTextDocumentDidOpen:   dlspplugin.PriorityAsync,
		protocol.MethodTextDocumentDidChange: dlspplugin.PriorityRegular,
		protocol.MethodTextDocumentDidSave:   dlspplugin.PriorityRegular,

		protocol.MethodWorkspaceDidChangeWatchedFiles:     dlspplugin.PriorityRegular,
		protocol.MethodWorkspaceDidChangeConfiguration:    dlspplugin.PriorityAsync,
		protocol.MethodWorkspaceDidChangeWorkspaceFolders: dlspplugin.PriorityAsync,
		dlspplugin.MethodEndSession:                       dlspplugin.PriorityRegular,
	}

	methods := &dlspplugin.Methods{
		PluginNameKey: _nameKey,

		Initialize:  c.initialize,
		Initialized: c.initialized,
		Shutdown:    c.shutdown,

		DidOpen:   c.didOpen,
		DidChange: c.didChange,
		DidSave:   c.didSave,

		DidChangeWatchedFiles:     c.didChangeWatchedFiles,
		DidChangeConfiguration:    c.didChangeConfiguration,
		DidChangeWorkspaceFolders: c.didChangeWorkspaceFolders,
		EndSession:                c.endSession,
	}

	return dlspplugin.PluginInfo{
		Priorities: priorities,
		Methods:    methods,
		NameKey:    _nameKey,
	}, nil
}

func (c *controller) GetOrCreate(ctx context.Context, root string) (buildagent.Client, error) {
	root = filepath.Clean(root)
	if client := c.lookup(root); client != nil {
		return client, nil
	}

	// Concurrent callers for one root share a single creation. The creation outlives any one caller.
	result := <-c.creating.DoChan(root, func() (any, error) {
		if client := c.lookup(root); client != nil {
			return created{client: client}, nil
		}
		client, err := c.create(context.WithoutCancel(ctx), entity.Project{Root: root})
		return created{client: client, err: err}, nil
	})
	if result.Err != nil {
		return nil, result.Err
	}
	res := result.Val.(created)
	return res.client, res.err
}

type created struct {
	client buildagent.Client
	err    error
}

// create resolves the configuration of a new project, registers its client and starts it.
func (c *controller) create(ctx context.Context, project entity.Project) (buildagent.Client, error) {
	cfg, err := c.resolver.ResolveProject(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration of %q: %w", project.Root, err)
	}

	client, err := c.factory.New(project, cfg, c, c.docSync.ContentOverrides)
	if err != nil {
		return nil, fmt.Errorf("creating client for %q: %w", project.Root, err)
	}

	c.mu.Lock()
	c.clients[project.Root] = client
	c.updateMetrics()
	c.mu.Unlock()

	if werr := c.watcher.Add(project.Root); werr != nil {
		c.logger.Warnw("project files will not be watched", "root", project.Root, zap.Error(werr))
	}

	c.stats.Counter("created").Inc(1)
	c.logger.Infow("client created", "client", client.ID(), "root", project.Root)
	c.ClientEvent(entity.LifecycleEvent{
		Kind:     entity.EventClientCreated,
		ClientID: client.ID(),
		Root:     project.Root,
		Config:   cfg.Plain(),
	})

	if err := client.Start(ctx); err != nil {
		return client, err
	}
	c.scheduler.RequestBuild(client, ReasonInitialized)
	return client, nil
}

func (c *controller) ProjectForURI(ctx context.Context, u uri.URI) (entity.Project, error) {
	path, err := mapper.URIToPath(u)
	if err != nil {
		return entity.Project{}, err
	}

	sessions, err := c.sessions.GetAllContaining(ctx, path)
	if err != nil {
		return entity.Project{}, err
	}

	var root string
	for _, s := range sessions {
		for _, folder := range s.WorkspaceFolders {
			if len(folder) > len(root) && (entity.Project{Root: folder}).Contains(path) {
				root = folder
			}
		}
	}
	if root == "" {
		return entity.Project{}, fmt.Errorf("%q: %w", path, dlsperrors.NoProjectRootError)
	}
	return entity.Project{Root: filepath.Clean(root)}, nil
}

func (c *controller) ClientForURI(ctx context.Context, u uri.URI) (buildagent.Client, error) {
	project, err := c.ProjectForURI(ctx, u)
	if err != nil {
		return nil, err
	}
	return c.GetOrCreate(ctx, project.Root)
}

func (c *controller) Get(id string) (buildagent.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, client := range c.clients {
		if client.ID() == id {
			return client, nil
		}
	}
	return nil, &dlsperrors.ClientNotFoundError{Key: id}
}

func (c *controller) Find(root string) (buildagent.Client, error) {
	if client := c.lookup(filepath.Clean(root)); client != nil {
		return client, nil
	}
	return nil, &dlsperrors.ClientNotFoundError{Key: root}
}

func (c *controller) Restart(ctx context.Context, ids []string) error {
	var targets []buildagent.Client
	var errs error
	if len(ids) == 0 {
		targets = c.all()
	} else {
		for _, id := range ids {
			client, err := c.Get(id)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			targets = append(targets, client)
		}
	}

	results := make([]error, len(targets))
	var g errgroup.Group
	for i, client := range targets {
		g.Go(func() error {
			results[i] = c.restart(ctx, client, ReasonRestart)
			return nil
		})
	}
	g.Wait()
	return multierr.Combine(append(results, errs)...)
}

// restart re-resolves the configuration of a client and starts a new generation with it.
func (c *controller) restart(ctx context.Context, client buildagent.Client, reason string) error {
	cfg, err := c.resolver.ResolveProject(ctx, client.Project())
	if err != nil {
		return fmt.Errorf("resolving configuration of %q: %w", client.Project().Root, err)
	}
	return c.restartWith(ctx, client, cfg, reason)
}

func (c *controller) restartWith(ctx context.Context, client buildagent.Client, cfg entity.Configuration, reason string) error {
	c.forgetInterrupted(client.ID())
	c.scheduler.Cancel(client.ID())
	c.stats.Counter("restarted").Inc(1)
	if err := client.Restart(ctx, cfg); err != nil {
		return fmt.Errorf("restarting client of %q: %w", client.Project().Root, err)
	}
	c.scheduler.RequestBuild(client, reason)
	return nil
}

// forgetInterrupted drops the pending resume of a client that is restarted or destroyed on request.
func (c *controller) forgetInterrupted(id string) {
	c.mu.Lock()
	delete(c.interrupted, id)
	c.mu.Unlock()
}

func (c *controller) Destroy(ctx context.Context, root string) error {
	root = filepath.Clean(root)
	c.mu.Lock()
	client, ok := c.clients[root]
	delete(c.clients, root)
	c.updateMetrics()
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return c.destroy(ctx, client)
}

func (c *controller) destroy(ctx context.Context, client buildagent.Client) error {
	if err := c.watcher.Remove(client.Project().Root); err != nil {
		c.logger.Debugw("unwatching project", "root", client.Project().Root, zap.Error(err))
	}
	c.forgetInterrupted(client.ID())
	c.scheduler.Cancel(client.ID())
	c.stats.Counter("destroyed").Inc(1)
	return client.Destroy(ctx)
}

func (c *controller) DestroyAll(ctx context.Context) error {
	c.mu.Lock()
	clients := make([]buildagent.Client, 0, len(c.clients))
	for _, client := range c.clients {
		clients = append(clients, client)
	}
	c.clients = make(map[string]buildagent.Client)
	c.updateMetrics()
	c.mu.Unlock()

	results := make([]error, len(clients))
	var g errgroup.Group
	for i, client := range clients {
		g.Go(func() error {
			results[i] = c.destroy(ctx, client)
			return nil
		})
	}
	g.Wait()
	return multierr.Combine(results...)
}

func (c *controller) Clients() []entity.ClientSummary {
	clients := c.all()
	summaries := make([]entity.ClientSummary, 0, len(clients))
	for _, client := range clients {
		summaries = append(summaries, client.Summary())
	}
	return summaries
}

func (c *controller) Subscribe(listener BuildListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

func (c *controller) lookup(root string) buildagent.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clients[root]
}

// all returns every registered client, ordered by root.
func (c *controller) all() []buildagent.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	roots := make([]string, 0, len(c.clients))
	for root := range c.clients {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	clients := make([]buildagent.Client, 0, len(roots))
	for _, root := range roots {
		clients = append(clients, c.clients[root])
	}
	return clients
}

// release destroys the clients of roots that no remaining session has open.
func (c *controller) release(ctx context.Context, gone uuid.UUID) error {
	sessions, err := c.sessions.GetAll(ctx)
	if err != nil {
		return err
	}

	var errs error
	for _, client := range c.all() {
		root := client.Project().Root
		inUse := false
		for _, s := range sessions {
			if s.UUID == gone {
				continue
			}
			for _, folder := range s.WorkspaceFolders {
				if filepath.Clean(folder) == root {
					inUse = true
				}
			}
		}
		if !inUse {
			errs = multierr.Append(errs, c.Destroy(ctx, root))
		}
	}
	return errs
}

// updateMetrics must be called with c.mu held.
func (c *controller) updateMetrics() {
	c.stats.Gauge("active").Update(float64(len(c.clients)))
}

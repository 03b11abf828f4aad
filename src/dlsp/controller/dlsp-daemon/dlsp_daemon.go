// Package dlspdaemon implements the dlsp-daemon business logic.
package dlspdaemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	docsync "github.com/uber/doc-lsp/src/dlsp/controller/doc-sync"
	"github.com/uber/doc-lsp/src/dlsp/controller/preview"
	"github.com/uber/doc-lsp/src/dlsp/controller/registry"
	userguidance "github.com/uber/doc-lsp/src/dlsp/controller/user-guidance"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	dlspplugin "github.com/uber/doc-lsp/src/dlsp/entity/dlsp-plugin"
	ideclient "github.com/uber/doc-lsp/src/dlsp/gateway/ide-client"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"github.com/uber/doc-lsp/src/dlsp/repository/session"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// Error templates
	_errBadPluginCall       = "calling plugin: %s"
	_errPluginReturnedError = "plugin %q returned error: %s"

	// Configuration keys
	_idleTimeoutMinutesKey = "idleTimeoutMinutes"
	_pluginsKey            = "dlspPlugins"

	_contextTimeoutAsync = 10 * time.Minute
)

// Controller orchestrates the business logic for each request.
type Controller interface {
	// LSP Methods defined per protocol.
	Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error)
	Initialized(ctx context.Context, params *protocol.InitializedParams) (err error)
	Shutdown(ctx context.Context) (err error)
	Exit(ctx context.Context) error

	// Document related methods.
	DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error
	DidChangeWatchedFiles(ctx context.Context, params *protocol.DidChangeWatchedFilesParams) error
	DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error
	DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error
	DidSave(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error

	// Workspace related methods.
	DidChangeConfiguration(ctx context.Context, params *protocol.DidChangeConfigurationParams) error
	DidChangeWorkspaceFolders(ctx context.Context, params *protocol.DidChangeWorkspaceFoldersParams) error
	ExecuteCommand(ctx context.Context, params *protocol.ExecuteCommandParams) (interface{}, error)

	// Window related methods.
	WorkDoneProgressCancel(ctx context.Context, params *protocol.WorkDoneProgressCancelParams) error

	// Build agent and preview commands.
	Restart(ctx context.Context, params *entity.RestartParams) error
	Preview(ctx context.Context, params *entity.PreviewParams) (*entity.PreviewResult, error)
	Clients(ctx context.Context) ([]entity.ClientSummary, error)
	EditorScroll(ctx context.Context, params *entity.ScrollParams) error

	// Custom methods for use within this service.
	RequestFullShutdown(ctx context.Context) error
	InitSession(ctx context.Context, conn *jsonrpc2.Conn) (uuid.UUID, error)
	EndSession(ctx context.Context, uuid uuid.UUID) error
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Shutdowner fx.Shutdowner
	Lifecycle  fx.Lifecycle
	Sessions   session.Repository
	IdeGateway ideclient.Gateway
	Logger     *zap.SugaredLogger
	Config     config.Provider
	Stats      tally.Scope

	PluginDocSync      docsync.Controller
	PluginRegistry     registry.Controller
	PluginPreview      preview.Controller
	PluginUserGuidance userguidance.Controller
}

type controller struct {
	sessions     session.Repository
	shutdowner   fx.Shutdowner
	logger       *zap.SugaredLogger
	ideGateway   ideclient.Gateway
	stats        tally.Scope
	registry     registry.Controller
	preview      preview.Controller
	fullShutdown bool

	// A zero idle timeout disables the idle timer.
	idleTimeout time.Duration
	idleTimer   *time.Timer
	idleTimerMu sync.Mutex
	stopped     chan struct{}
	stopOnce    sync.Once

	pluginMu      sync.RWMutex
	pluginMethods map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods
	pluginConfig  map[string]bool
	pluginsAll    []dlspplugin.Plugin
	wg            sync.WaitGroup
}

// New constructs a new top-level controller for the service.
func New(p Params) (Controller, error) {
	var timeoutMinutes int64
	if err := p.Config.Get(_idleTimeoutMinutesKey).Populate(&timeoutMinutes); err != nil {
		return nil, fmt.Errorf("unable to get idle timeout from config: %w", err)
	} else if timeoutMinutes < 0 {
		return nil, fmt.Errorf("invalid %q value %d", _idleTimeoutMinutesKey, timeoutMinutes)
	}
	var pluginConfig map[string]bool
	if err := p.Config.Get(_pluginsKey).Populate(&pluginConfig); err != nil {
		return nil, fmt.Errorf("unable to get plugin keys from config: %w", err)
	}

	// When creating a new plugin, add it as a dependency in Params, then add it to the list of available plugins here.
	// Registry runs before preview so that a project has a client by the time its preview is requested.
	availablePlugins := []dlspplugin.Plugin{p.PluginDocSync, p.PluginRegistry, p.PluginPreview, p.PluginUserGuidance}

	c := &controller{
		sessions:   p.Sessions,
		shutdowner: p.Shutdowner,
		logger:     p.Logger,
		ideGateway: p.IdeGateway,
		stats:      p.Stats.SubScope("daemon"),
		registry:   p.PluginRegistry,
		preview:    p.PluginPreview,

		idleTimeout:   time.Duration(timeoutMinutes) * time.Minute,
		stopped:       make(chan struct{}),
		pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{},
		pluginConfig:  pluginConfig,
		pluginsAll:    availablePlugins,
	}
	c.refreshIdleTimer(context.Background())

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			c.stop()
			c.wg.Wait()
			return nil
		},
	})
	return c, nil
}

func (c *controller) registerSessionPlugins(ctx context.Context) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("getting session from context: %w", err)
	}

	enabledPlugins := []dlspplugin.PluginInfo{}
	for _, plugin := range c.pluginsAll {
		if plugin == nil {
			continue
		}
		info, err := plugin.StartupInfo(ctx)
		if err != nil {
			return fmt.Errorf("getting plugin startup info: %w", err)
		}

		if isEnabled := c.pluginConfig[info.NameKey]; isEnabled {
			c.logger.Infow("plugin registration", "plugin", info.NameKey, "status", "enabled")
			enabledPlugins = append(enabledPlugins, info)
		} else {
			c.logger.Infow("plugin registration", "plugin", info.NameKey, "status", "disabled")
		}
	}

	methods, err := mapper.PluginInfoToRuntimePrioritizedMethods(enabledPlugins)
	if err != nil {
		return fmt.Errorf("prioritizing plugin methods: %w", err)
	}
	c.pluginMu.Lock()
	defer c.pluginMu.Unlock()
	c.pluginMethods[s.UUID] = methods
	return nil
}

// executePluginMethods will execute modules in the order defined for the given method.
// The caller is responsible for defining and providing a handlerSync and handlerAsync function, which should call the corresponding method with proper arguments.
// The same function may be passed in for both sync and async if no difference is needed.
func (c *controller) executePluginMethods(ctx context.Context, method string, handlerSync func(ctx context.Context, m *dlspplugin.Methods), handlerAsync func(ctx context.Context, m *dlspplugin.Methods)) error {
	if handlerSync == nil || handlerAsync == nil {
		return fmt.Errorf("handlers cannot be nil")
	}

	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return fmt.Errorf("getting session from context: %w", err)
	}

	c.pluginMu.RLock()
	methodLists, ok := c.pluginMethods[id][method]
	c.pluginMu.RUnlock()
	if !ok {
		// No need to execute if this method has no registered plugins.
		return nil
	}
	c.stats.Tagged(map[string]string{"method": method}).Counter("plugin_calls").Inc(1)

	for _, current := range methodLists.Sync {
		handlerSync(ctx, current)
	}
	if len(methodLists.Async) == 0 {
		return nil
	}

	// Outer goroutine will spawn a goroutine for each asynchronous plugin method, then wait for them to complete with a timeout.
	// Plugins that implement asynchronous methods are responsible for respecting the context timeout or cancellation signal.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		asyncCtx := mapper.SessionUUIDToContext(context.Background(), id)
		asyncCtx, cancel := context.WithTimeout(asyncCtx, _contextTimeoutAsync)
		defer cancel()

		var innerWg sync.WaitGroup
		for _, current := range methodLists.Async {
			innerWg.Add(1)
			go func(m *dlspplugin.Methods) {
				defer innerWg.Done()
				handlerAsync(asyncCtx, m)
			}(current)
		}
		innerWg.Wait()
	}()

	return nil
}

package dlspdaemon

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/uuid"
	dlspplugin "github.com/uber/doc-lsp/src/dlsp/entity/dlsp-plugin"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

const _serverName = "dlsp"

// Initialize will store information about a new connection and perform any setup needed.
func (c *controller) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	result := &protocol.InitializeResult{
		ServerInfo: &protocol.ServerInfo{
			Name: _serverName,
		},
	}

	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting session from context: %w", err)
	}

	s.InitializeParams = params
	s.WorkspaceFolders = mapper.InitializeParamsToWorkspaceFolders(params)
	s.InitializationOptions = mapper.InitializationOptionsToMap(params.InitializationOptions)
	s.Enabled = len(s.WorkspaceFolders) > 0
	if !s.Enabled {
		c.logger.Warnw("no workspace folder opened, dlsp is disabled for this session", "session", s.UUID)
	}

	if err := c.sessions.Set(ctx, s); err != nil {
		return nil, fmt.Errorf("setting updated session state: %w", err)
	}

	if s.Enabled {
		result.Capabilities = protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindIncremental,
				Save: &protocol.SaveOptions{
					IncludeText: true,
				},
			},
		}
		mapper.InitializeResultEnsureWorkspaceFolders(result)
		if err := mapper.InitializeResultAppendExecuteCommandProvider(result, &protocol.ExecuteCommandOptions{
			Commands: _commands,
		}); err != nil {
			return nil, fmt.Errorf("advertising commands: %w", err)
		}

		if err := c.registerSessionPlugins(ctx); err != nil {
			return nil, fmt.Errorf("registering session plugins: %w", err)
		}
	}

	callSync := func(ctx context.Context, m *dlspplugin.Methods) {
		if err := m.Initialize(ctx, params, result); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}
	callAsync := func(ctx context.Context, m *dlspplugin.Methods) {
		if err := m.Initialize(ctx, params, nil); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}
	if err := c.executePluginMethods(ctx, protocol.MethodInitialize, callSync, callAsync); err != nil {
		return nil, fmt.Errorf(_errBadPluginCall, err)
	}

	return result, nil
}

// Initialized handles any actions that need to occur immediately after initialization.
func (c *controller) Initialized(ctx context.Context, params *protocol.InitializedParams) error {
	call := func(ctx context.Context, m *dlspplugin.Methods) {
		if err := m.Initialized(ctx, params); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}
	if err := c.executePluginMethods(ctx, protocol.MethodInitialized, call, call); err != nil {
		return fmt.Errorf(_errBadPluginCall, err)
	}

	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("getting session from context: %w", err)
	}

	msg := &protocol.ShowMessageParams{
		Message: "Connection to dlsp is now initialized.",
		Type:    protocol.MessageTypeInfo,
	}
	if !s.Enabled {
		msg = &protocol.ShowMessageParams{
			Message: "dlsp is not available without an open workspace folder.",
			Type:    protocol.MessageTypeWarning,
		}
	}
	if err := c.ideGateway.ShowMessage(ctx, msg); err != nil {
		c.logger.Warnw("showing initialized message", "error", err)
	}
	return nil
}

// Shutdown is sent just before Exit to indicate that the session will exit.
func (c *controller) Shutdown(ctx context.Context) error {
	call := func(ctx context.Context, m *dlspplugin.Methods) {
		if err := m.Shutdown(ctx); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}
	if err := c.executePluginMethods(ctx, protocol.MethodShutdown, call, call); err != nil {
		return fmt.Errorf(_errBadPluginCall, err)
	}
	return nil
}

// Exit will be used to either clean up from an individual connection, or shutdown the whole server.
func (c *controller) Exit(ctx context.Context) error {
	call := func(ctx context.Context, m *dlspplugin.Methods) {
		if err := m.Exit(ctx); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}
	if err := c.executePluginMethods(ctx, protocol.MethodExit, call, call); err != nil {
		c.logger.Errorf(_errBadPluginCall, err)
	}

	if c.isFullShutdown() {
		c.idleTimerMu.Lock()
		defer c.idleTimerMu.Unlock()
		if c.idleTimer != nil {
			// Zero out the timer to trigger immediate shutdown.
			c.idleTimer.Reset(0)
			return nil
		}
		c.logger.Info("Full shutdown requested.")
		return c.shutdowner.Shutdown()
	}
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("error during session exit: %w", err)
	}

	return c.EndSession(ctx, s.UUID)
}

// RequestFullShutdown will set the controller to treat subsequent Shutdown and Exit requests as requests to exit the entire process.
func (c *controller) RequestFullShutdown(ctx context.Context) error {
	c.idleTimerMu.Lock()
	defer c.idleTimerMu.Unlock()
	c.fullShutdown = true
	return nil
}

func (c *controller) isFullShutdown() bool {
	c.idleTimerMu.Lock()
	defer c.idleTimerMu.Unlock()
	return c.fullShutdown
}

// InitSession creates a new empty session and returns its UUID.
func (c *controller) InitSession(ctx context.Context, conn *jsonrpc2.Conn) (uuid.UUID, error) {
	defer c.refreshIdleTimer(ctx)

	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}

	session := mapper.UUIDToSession(id, conn)
	if err := c.ideGateway.RegisterClient(ctx, id, conn); err != nil {
		return uuid.Nil, err
	}

	if err := c.sessions.Set(ctx, session); err != nil {
		return uuid.Nil, err
	}
	c.stats.Counter("sessions_started").Inc(1)
	return id, nil
}

// EndSession includes any cleanup at the end of the session, during or after the last JSON-RPC request.
func (c *controller) EndSession(ctx context.Context, uuid uuid.UUID) error {
	defer c.refreshIdleTimer(ctx)

	c.pluginMu.RLock()
	_, ok := c.pluginMethods[uuid]
	c.pluginMu.RUnlock()
	if ok {
		call := func(ctx context.Context, m *dlspplugin.Methods) {
			if err := m.EndSession(ctx, uuid); err != nil {
				c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
			}
		}
		sessionCtx := mapper.SessionUUIDToContext(ctx, uuid)
		if err := c.executePluginMethods(sessionCtx, dlspplugin.MethodEndSession, call, call); err != nil {
			c.logger.Errorf(_errBadPluginCall, err)
		}
	}

	if err := c.ideGateway.DeregisterClient(ctx, uuid); err != nil {
		c.logger.Error(err)
	}

	c.pluginMu.Lock()
	delete(c.pluginMethods, uuid)
	c.pluginMu.Unlock()
	return c.sessions.Delete(ctx, uuid)
}

// refreshIdleTimer ensures that the service shuts down after a defined inactivity period with no connections.
func (c *controller) refreshIdleTimer(ctx context.Context) error {
	if c.idleTimeout == 0 {
		return nil
	}

	c.idleTimerMu.Lock()
	defer c.idleTimerMu.Unlock()

	// First call initializes new timer and leaves it running prior to first connection.
	if c.idleTimer == nil {
		c.idleTimer = time.NewTimer(c.idleTimeout)
		go c.awaitIdleTimer(c.idleTimer)
		return nil
	}

	// Subsequent calls stop the timer and reset it only if no connections are active.
	currentSessions, err := c.sessions.SessionCount(ctx)
	if err != nil {
		return fmt.Errorf("error resetting timeout: %w", err)
	}

	c.idleTimer.Stop()
	if currentSessions == 0 {
		c.idleTimer.Reset(c.idleTimeout)
	}
	return nil
}

func (c *controller) awaitIdleTimer(timer *time.Timer) {
	select {
	case <-timer.C:
	case <-c.stopped:
		return
	}
	c.logger.Info("Shutdown signal received.")
	if err := c.shutdowner.Shutdown(); err != nil {
		os.Exit(1)
	}
}

// stop releases the idle timer goroutine.
func (c *controller) stop() {
	c.stopOnce.Do(func() {
		close(c.stopped)
		c.idleTimerMu.Lock()
		defer c.idleTimerMu.Unlock()
		if c.idleTimer != nil {
			c.idleTimer.Stop()
		}
	})
}

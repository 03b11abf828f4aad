// Package buildagent manages one build agent subprocess per project and the builds run on it.
package buildagent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/uber-go/tally"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	"github.com/uber/doc-lsp/src/dlsp/internal/clock"
	dlsperrors "github.com/uber/doc-lsp/src/dlsp/internal/errors"
	"github.com/uber/doc-lsp/src/dlsp/internal/executor"
	"github.com/uber/doc-lsp/src/dlsp/internal/rpc"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

// Listener receives the events of a client. Methods are called without any client lock held,
// from whichever goroutine caused the event, and must not block for long.
type Listener interface {
	ClientEvent(event entity.LifecycleEvent)
	BuildStarted(client Client, reasons []string)
	BuildCompleted(client Client, result entity.BuildResult)
	AgentLog(client Client, params *protocol.LogMessageParams)
	AgentProgress(client Client, params *protocol.ProgressParams)
	AgentDiagnostics(client Client, params *protocol.PublishDiagnosticsParams)
}

// ContentFunc returns the unsaved editor content of files in the project, keyed by path.
type ContentFunc func(project entity.Project) map[string]string

// Client is the handle on one build agent subprocess and its lifecycle.
type Client interface {
	ID() string
	Project() entity.Project
	State() entity.ClientState
	// Generation increases on every restart. Responses from an earlier generation are discarded.
	Generation() int64
	Config() entity.Configuration
	// App is the build tool instance reported by the agent, nil until the client has been Ready.
	App() *entity.AppInfo
	// LastBuild is the most recent completed build of any generation, or nil.
	LastBuild() *entity.BuildResult
	// Err is the reason the client entered Errored.
	Err() error
	Summary() entity.ClientSummary

	// Start spawns the agent and begins the handshake. It returns once the process is running.
	Start(ctx context.Context) error
	// Build runs one build and blocks until the agent replies. Only valid while Ready.
	Build(ctx context.Context, reasons []string) (*entity.BuildResult, error)
	// Call sends any other request to the agent. Allowed while Ready or Building.
	Call(ctx context.Context, method string, params any, result any) error
	// Restart terminates the current process, if any, and starts a new generation with the given configuration.
	Restart(ctx context.Context, cfg entity.Configuration) error
	// Destroy terminates the process and fails every pending request. It is final.
	Destroy(ctx context.Context) error
}

// Options configures a client.
type Options struct {
	ID              string
	Project         entity.Project
	Config          entity.Configuration
	Spawner         Spawner
	Listener        Listener
	Content         ContentFunc
	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration
	Clock           clock.Clock
	Logger          *zap.SugaredLogger
	Stats           tally.Scope
}

type client struct {
	id              string
	project         entity.Project
	spawner         Spawner
	listener        Listener
	content         ContentFunc
	startupTimeout  time.Duration
	shutdownTimeout time.Duration
	clock           clock.Clock
	logger          *zap.SugaredLogger
	stats           tally.Scope

	mu         sync.Mutex
	state      entity.ClientState
	generation int64
	cfg        entity.Configuration
	app        *entity.AppInfo
	err        error
	proc       executor.Process
	transport  rpc.Transport

	lastBuild atomic.Pointer[entity.BuildResult]
}

// NewClient creates a client in Starting. No process runs until Start.
func NewClient(opts Options) Client {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Stats == nil {
		opts.Stats = tally.NoopScope
	}

	return &client{
		id:              opts.ID,
		project:         opts.Project,
		spawner:         opts.Spawner,
		listener:        opts.Listener,
		content:         opts.Content,
		startupTimeout:  opts.StartupTimeout,
		shutdownTimeout: opts.ShutdownTimeout,
		clock:           opts.Clock,
		logger:          opts.Logger.With("client", opts.ID, "root", opts.Project.Root),
		stats:           opts.Stats,
		state:           entity.ClientStarting,
		cfg:             opts.Config,
	}
}

func (c *client) ID() string {
	return c.id
}

func (c *client) Project() entity.Project {
	return c.project
}

func (c *client) State() entity.ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *client) Generation() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *client) Config() entity.Configuration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *client) App() *entity.AppInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.app
}

func (c *client) LastBuild() *entity.BuildResult {
	return c.lastBuild.Load()
}

func (c *client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *client) Summary() entity.ClientSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return entity.ClientSummary{
		ID:         c.id,
		Root:       c.project.Root,
		State:      c.state,
		Generation: c.generation,
		App:        c.app,
	}
}

func (c *client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != entity.ClientStarting || c.proc != nil {
		state := c.state
		c.mu.Unlock()
		return &dlsperrors.NotReadyError{Root: c.project.Root, State: state.String()}
	}
	gen, cfg := c.generation, c.cfg
	c.mu.Unlock()

	return c.launch(ctx, gen, cfg)
}

func (c *client) Build(ctx context.Context, reasons []string) (*entity.BuildResult, error) {
	c.mu.Lock()
	if c.state != entity.ClientReady {
		state := c.state
		c.mu.Unlock()
		return nil, &dlsperrors.NotReadyError{Root: c.project.Root, State: state.String()}
	}
	c.state = entity.ClientBuilding
	gen, t, app := c.generation, c.transport, *c.app
	c.mu.Unlock()

	c.listener.BuildStarted(c, reasons)
	params := BuildParams{Reasons: reasons}
	if c.content != nil {
		params.ContentOverrides = c.content(c.project)
	}

	var reply BuildReply
	err := t.Call(ctx, MethodBuild, params, &reply)

	result := &entity.BuildResult{Generation: gen, App: app, Timestamp: c.clock.Now()}
	var rpcErr *jsonrpc2.Error
	switch {
	case err == nil:
		result.Success = true
		result.Warnings = reply.Warnings
		result.FileMap = reply.FileMap
	case errors.As(err, &rpcErr):
		// The build tool ran and failed. The agent itself is fine.
		result.Error = rpcErr.Message
		if rpcErr.Data != nil {
			var detail BuildReply
			if json.Unmarshal(*rpcErr.Data, &detail) == nil {
				result.Warnings = detail.Warnings
			}
		}
	case ctx.Err() != nil:
		c.endBuild(gen)
		return nil, ctx.Err()
	default:
		c.fail(gen, &dlsperrors.ProcessError{Root: c.project.Root, ExitCode: -1, Err: err})
		return nil, err
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		c.stats.Counter("stale_responses").Inc(1)
		return nil, dlsperrors.ErrStaleGeneration
	}
	if c.state == entity.ClientBuilding {
		c.state = entity.ClientReady
	}
	c.lastBuild.Store(result)
	c.mu.Unlock()

	if result.Success {
		c.stats.Counter("builds_succeeded").Inc(1)
	} else {
		c.stats.Counter("builds_failed").Inc(1)
	}
	c.listener.BuildCompleted(c, *result)
	return result, nil
}

func (c *client) Call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	if c.state != entity.ClientReady && c.state != entity.ClientBuilding {
		state := c.state
		c.mu.Unlock()
		return &dlsperrors.NotReadyError{Root: c.project.Root, State: state.String()}
	}
	gen, t := c.generation, c.transport
	c.mu.Unlock()

	var raw json.RawMessage
	if err := t.Call(ctx, method, params, &raw); err != nil {
		return err
	}
	if c.Generation() != gen {
		return dlsperrors.ErrStaleGeneration
	}
	if result == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, result)
}

func (c *client) Restart(ctx context.Context, cfg entity.Configuration) error {
	c.mu.Lock()
	if c.state == entity.ClientDestroyed {
		c.mu.Unlock()
		return dlsperrors.ErrClientDestroyed
	}
	// Any state restarts. The old generation is abandoned through Errored before the new one starts.
	proc, t := c.proc, c.transport
	c.proc, c.transport = nil, nil
	wasErrored := c.state == entity.ClientErrored
	c.state = entity.ClientErrored
	c.err = dlsperrors.ErrRestarting
	c.generation++
	abandoned := c.generation
	c.mu.Unlock()

	c.terminate(proc, t)
	if !wasErrored {
		c.listener.ClientEvent(entity.LifecycleEvent{
			Kind:       entity.EventClientErrored,
			ClientID:   c.id,
			Root:       c.project.Root,
			Error:      dlsperrors.ErrRestarting.Error(),
			Restarting: true,
		})
	}

	c.mu.Lock()
	if c.state == entity.ClientDestroyed {
		c.mu.Unlock()
		return dlsperrors.ErrClientDestroyed
	}
	if c.generation != abandoned {
		// A later restart took over while the old process exited.
		c.mu.Unlock()
		return nil
	}
	c.state = entity.ClientStarting
	c.cfg = cfg
	c.app = nil
	c.err = nil
	gen := c.generation
	c.mu.Unlock()

	c.logger.Infow("restarting build agent", "generation", gen)
	c.stats.Counter("restarts").Inc(1)
	return c.launch(ctx, gen, cfg)
}

func (c *client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.state == entity.ClientDestroyed {
		c.mu.Unlock()
		return nil
	}
	c.state = entity.ClientDestroyed
	c.generation++
	proc, t := c.proc, c.transport
	c.proc, c.transport = nil, nil
	c.mu.Unlock()

	c.terminate(proc, t)
	c.logger.Infow("build agent destroyed")
	c.listener.ClientEvent(entity.LifecycleEvent{
		Kind:     entity.EventClientDestroyed,
		ClientID: c.id,
		Root:     c.project.Root,
	})
	return nil
}

// launch spawns the process of one generation and starts its handshake in the background.
func (c *client) launch(ctx context.Context, gen int64, cfg entity.Configuration) error {
	proc, err := c.spawner.Spawn(ctx, c.id, c.project, cfg)
	if err != nil {
		if !dlsperrors.IsConfigurationError(err) {
			err = &dlsperrors.ProcessError{Root: c.project.Root, ExitCode: -1, Err: err}
		}
		c.fail(gen, err)
		return err
	}

	t := rpc.New(proc, rpc.Options{Logger: c.logger, Stats: c.stats.SubScope("transport")})
	t.On(protocol.MethodWindowLogMessage, func(ctx context.Context, raw json.RawMessage) {
		var params protocol.LogMessageParams
		if c.decodeEvent(gen, protocol.MethodWindowLogMessage, raw, &params) {
			c.listener.AgentLog(c, &params)
		}
	})
	t.On(protocol.MethodProgress, func(ctx context.Context, raw json.RawMessage) {
		var params protocol.ProgressParams
		if c.decodeEvent(gen, protocol.MethodProgress, raw, &params) {
			c.listener.AgentProgress(c, &params)
		}
	})
	t.On(MethodDiagnostics, func(ctx context.Context, raw json.RawMessage) {
		var params protocol.PublishDiagnosticsParams
		if c.decodeEvent(gen, MethodDiagnostics, raw, &params) {
			c.listener.AgentDiagnostics(c, &params)
		}
	})

	c.mu.Lock()
	if c.generation != gen {
		// Restarted or destroyed while spawning.
		c.mu.Unlock()
		c.terminate(proc, t)
		return dlsperrors.ErrStaleGeneration
	}
	c.proc, c.transport = proc, t
	c.mu.Unlock()

	// The transport outlives the request that started it.
	t.Start(context.Background())
	go c.watch(gen, proc, t)
	go c.handshake(gen, t, cfg)
	return nil
}

func (c *client) handshake(gen int64, t rpc.Transport, cfg entity.Configuration) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var app entity.AppInfo
	done := make(chan error, 1)
	go func() {
		done <- t.Call(ctx, MethodCreateApp, createAppParams(cfg), &app)
	}()

	var err error
	select {
	case err = <-done:
	case <-c.clock.After(c.startupTimeout):
		cancel()
		<-done
		err = &dlsperrors.StartupTimeoutError{Root: c.project.Root, Timeout: c.startupTimeout}
	}

	if err != nil {
		var rpcErr *jsonrpc2.Error
		switch {
		case errors.As(err, &rpcErr):
			err = &dlsperrors.ConfigurationError{Root: c.project.Root, Reason: rpcErr.Message}
		case !dlsperrors.IsProcessError(err):
			err = &dlsperrors.ProcessError{Root: c.project.Root, ExitCode: -1, Err: err}
		}
		c.fail(gen, err)
		return
	}

	c.mu.Lock()
	if c.generation != gen || c.state != entity.ClientStarting {
		c.mu.Unlock()
		return
	}
	c.state = entity.ClientReady
	c.app = &app
	c.mu.Unlock()

	c.logger.Infow("build agent ready", "generation", gen, "builder", app.BuilderName, "version", app.Version)
	c.stats.Counter("ready").Inc(1)
	c.listener.ClientEvent(entity.LifecycleEvent{
		Kind:     entity.EventAppCreated,
		ClientID: c.id,
		Root:     c.project.Root,
		Config:   cfg.Plain(),
		App:      &app,
	})
}

// watch fails the generation when its process exits or its transport closes.
func (c *client) watch(gen int64, proc executor.Process, t rpc.Transport) {
	var err error
	select {
	case <-proc.Done():
		pe := &dlsperrors.ProcessError{Root: c.project.Root, ExitCode: proc.ExitCode()}
		if pe.ExitCode < 0 {
			pe.Err = proc.Err()
		}
		err = pe
	case <-t.Done():
		err = &dlsperrors.ProcessError{Root: c.project.Root, ExitCode: -1, Err: t.Err()}
	}
	c.fail(gen, err)
}

// fail moves the given generation to Errored, once. Later failures and failures of earlier generations are ignored.
func (c *client) fail(gen int64, err error) {
	c.mu.Lock()
	if c.generation != gen || c.state == entity.ClientErrored || c.state == entity.ClientDestroyed {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = entity.ClientErrored
	c.err = err
	proc, t := c.proc, c.transport
	c.proc, c.transport = nil, nil
	cfg := c.cfg
	c.mu.Unlock()

	c.terminate(proc, t)
	c.logger.Warnw("build agent errored", "generation", gen, "state", prev.String(), zap.Error(err))
	c.stats.Counter("errored").Inc(1)
	c.listener.ClientEvent(entity.LifecycleEvent{
		Kind:     entity.EventClientErrored,
		ClientID: c.id,
		Root:     c.project.Root,
		Error:    err.Error(),
	})

	// Only a crash after a successful start is retried, so a broken configuration cannot loop.
	if cfg.Bool(entity.OptionRestartOnCrash) && (prev == entity.ClientReady || prev == entity.ClientBuilding) {
		go func() {
			if err := c.Restart(context.Background(), cfg); err != nil {
				c.logger.Warnw("restart after crash", zap.Error(err))
			}
		}()
	}
}

// endBuild returns a cancelled build's client to Ready.
func (c *client) endBuild(gen int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen && c.state == entity.ClientBuilding {
		c.state = entity.ClientReady
	}
}

// terminate closes the transport, failing its pending requests, and waits for the process to exit.
// A process that does not exit within the shutdown timeout is killed.
func (c *client) terminate(proc executor.Process, t rpc.Transport) {
	if t != nil {
		if t.Err() == nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
			if err := t.Notify(ctx, MethodExit, nil); err != nil {
				c.logger.Debugw("asking build agent to exit", zap.Error(err))
			}
			cancel()
		}
		t.Close()
	}
	if proc == nil {
		return
	}
	if err := proc.Close(); err != nil {
		c.logger.Debugw("closing build agent streams", zap.Error(err))
	}

	select {
	case <-proc.Done():
	case <-c.clock.After(c.shutdownTimeout):
		c.logger.Warnw("build agent did not exit, killing", "pid", proc.Pid())
		if err := proc.Kill(); err != nil {
			c.logger.Errorw("killing build agent", "pid", proc.Pid(), zap.Error(err))
			return
		}
		<-proc.Done()
	}
}

func (c *client) decodeEvent(gen int64, method string, raw json.RawMessage, out any) bool {
	if c.Generation() != gen {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warnw("malformed agent event", "method", method, zap.Error(err))
		return false
	}
	return true
}

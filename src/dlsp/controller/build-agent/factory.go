package buildagent

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	"github.com/uber/doc-lsp/src/dlsp/internal/clock"
	"github.com/uber/doc-lsp/src/dlsp/internal/executor"
	"github.com/uber/doc-lsp/src/dlsp/internal/fs"
	"github.com/uber/doc-lsp/src/dlsp/internal/logfilewriter"
	"github.com/uber/doc-lsp/src/dlsp/internal/serverinfofile"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_configKeyStartupTimeout  = "buildAgent.startupTimeoutSeconds"
	_configKeyShutdownTimeout = "buildAgent.shutdownTimeoutSeconds"

	_defaultStartupTimeout  = 30 * time.Second
	_defaultShutdownTimeout = 5 * time.Second
)

// Factory creates clients that share the daemon's process spawner and timeouts.
type Factory interface {
	New(project entity.Project, cfg entity.Configuration, listener Listener, content ContentFunc) (Client, error)
}

// Params are inbound parameters to initialize a new Factory.
type Params struct {
	fx.In

	Config         config.Provider
	Executor       executor.Executor
	FS             fs.DlspFS
	ServerInfoFile serverinfofile.ServerInfoFile
	Logger         *zap.SugaredLogger
	Stats          tally.Scope
	Clock          clock.Clock `optional:"true"`
}

type agentFactory struct {
	spawner         Spawner
	startupTimeout  time.Duration
	shutdownTimeout time.Duration
	clock           clock.Clock
	logger          *zap.SugaredLogger
	stats           tally.Scope
}

// NewFactory reads the agent timeouts from the daemon configuration.
func NewFactory(p Params) (Factory, error) {
	startup, err := seconds(p.Config, _configKeyStartupTimeout, _defaultStartupTimeout)
	if err != nil {
		return nil, err
	}
	shutdown, err := seconds(p.Config, _configKeyShutdownTimeout, _defaultShutdownTimeout)
	if err != nil {
		return nil, err
	}
	if p.Clock == nil {
		p.Clock = clock.New()
	}

	logger := p.Logger.With("plugin", "build-agent")
	return &agentFactory{
		spawner:         newProcessSpawner(p.Executor, logfilewriter.Params{FS: p.FS, ServerInfoFile: p.ServerInfoFile}, logger),
		startupTimeout:  startup,
		shutdownTimeout: shutdown,
		clock:           p.Clock,
		logger:          logger,
		stats:           p.Stats.SubScope("build_agent"),
	}, nil
}

// NewFactoryWithSpawner creates a Factory with a custom spawner, such as an in-process agent.
func NewFactoryWithSpawner(spawner Spawner, startupTimeout, shutdownTimeout time.Duration, logger *zap.SugaredLogger, stats tally.Scope) Factory {
	return &agentFactory{
		spawner:         spawner,
		startupTimeout:  startupTimeout,
		shutdownTimeout: shutdownTimeout,
		clock:           clock.New(),
		logger:          logger,
		stats:           stats,
	}
}

func (f *agentFactory) New(project entity.Project, cfg entity.Configuration, listener Listener, content ContentFunc) (Client, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("generating client id: %w", err)
	}

	return NewClient(Options{
		ID:              id.String(),
		Project:         project,
		Config:          cfg,
		Spawner:         f.spawner,
		Listener:        listener,
		Content:         content,
		StartupTimeout:  f.startupTimeout,
		ShutdownTimeout: f.shutdownTimeout,
		Clock:           f.clock,
		Logger:          f.logger,
		Stats:           f.stats,
	}), nil
}

func seconds(cfg config.Provider, key string, def time.Duration) (time.Duration, error) {
	var n int
	if err := cfg.Get(key).Populate(&n); err != nil {
		return 0, fmt.Errorf("getting config field %q: %w", key, err)
	}
	if n <= 0 {
		return def, nil
	}
	return time.Duration(n) * time.Second, nil
}

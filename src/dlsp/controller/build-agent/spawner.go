package buildagent

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/uber/doc-lsp/src/dlsp/entity"
	dlsperrors "github.com/uber/doc-lsp/src/dlsp/internal/errors"
	"github.com/uber/doc-lsp/src/dlsp/internal/executor"
	"github.com/uber/doc-lsp/src/dlsp/internal/logfilewriter"
	"go.uber.org/zap"
)

const _agentLogName = "dlsp-agents"

// _baseEnv is always passed to the agent, in addition to the configured passthrough variables.
var _baseEnv = []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR", "SYSTEMROOT", "VIRTUAL_ENV", "PYTHONPATH"}

// Spawner starts the agent subprocess for a client.
type Spawner interface {
	Spawn(ctx context.Context, id string, project entity.Project, cfg entity.Configuration) (executor.Process, error)
}

// SpawnerFunc adapts a function to a Spawner.
type SpawnerFunc func(ctx context.Context, id string, project entity.Project, cfg entity.Configuration) (executor.Process, error)

// Spawn calls f.
func (f SpawnerFunc) Spawn(ctx context.Context, id string, project entity.Project, cfg entity.Configuration) (executor.Process, error) {
	return f(ctx, id, project, cfg)
}

type processSpawner struct {
	executor  executor.Executor
	logParams logfilewriter.Params
	logger    *zap.SugaredLogger
	lookupEnv func(string) (string, bool)
}

// Spawn runs the configured agent command in the configured working directory.
// The agent's stderr is written to a per-agent log file that lives as long as the process.
func (s *processSpawner) Spawn(ctx context.Context, id string, project entity.Project, cfg entity.Configuration) (executor.Process, error) {
	command := cfg.Strings(entity.OptionAgentCommand)
	if len(command) == 0 {
		return nil, &dlsperrors.ConfigurationError{Root: project.Root, Reason: fmt.Sprintf("%s is empty", entity.OptionAgentCommand)}
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = cfg.String(entity.OptionCwd)
	if cmd.Dir == "" {
		cmd.Dir = project.Root
	}

	stderr, err := logfilewriter.SetupOutputWriter(s.logParams, _agentLogName, id)
	if err != nil {
		s.logger.Warnw("agent output will be discarded", "client", id, zap.Error(err))
		stderr = nil
	}

	proc, err := s.executor.Start(cmd, s.environment(cfg.Strings(entity.OptionEnvPassthrough)), stderr)
	if err != nil {
		if stderr != nil {
			stderr.Close()
		}
		return nil, err
	}

	if stderr != nil {
		go func() {
			<-proc.Done()
			if err := stderr.Close(); err != nil {
				s.logger.Debugw("closing agent output", "client", id, zap.Error(err))
			}
		}()
	}
	return proc, nil
}

func (s *processSpawner) environment(passthrough []string) []string {
	env := make([]string, 0, len(_baseEnv)+len(passthrough))
	seen := make(map[string]struct{})
	for _, name := range append(append([]string{}, _baseEnv...), passthrough...) {
		name = strings.TrimSpace(name)
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		if v, ok := s.lookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}

func newProcessSpawner(ex executor.Executor, logParams logfilewriter.Params, logger *zap.SugaredLogger) *processSpawner {
	return &processSpawner{
		executor:  ex,
		logParams: logParams,
		logger:    logger,
		lookupEnv: os.LookupEnv,
	}
}

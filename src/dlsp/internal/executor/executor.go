package executor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Module provides a module to inject using fx.
var Module = fx.Options(
	fx.Provide(func(logger *zap.SugaredLogger) Executor {
		return NewExecutor(WithLogger(logger))
	}),
)

// Executor wraps the execution of "os/exec".Cmd's to allow adding logs/metrics to
// each exec and makes it easier to test.
type Executor interface {
	// Start logs and starts the Cmd specified as a long-lived process whose stdin and stdout are
	// exposed as a single stream. Stderr is copied to the given writer, which may be nil.
	Start(cmd *exec.Cmd, env []string, stderr io.Writer) (Process, error)
}

// Process is a running child whose standard streams carry a framed protocol.
type Process interface {
	io.ReadWriteCloser

	// Pid returns the operating system process id.
	Pid() int
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// ExitCode is valid once Done is closed; -1 if the process was killed by a signal.
	ExitCode() int
	// Err returns the error reported by Wait, valid once Done is closed.
	Err() error
	// Kill terminates the process immediately.
	Kill() error
}

// executorImp implements Executor
type executorImp struct {
	Logger *zap.SugaredLogger
	// StartFunc may be overridden in tests.
	StartFunc func(cmd *exec.Cmd) error
}

// Option defines options to customize executorImp's behavior
type Option func(*executorImp)

// WithLogger overrides the default noop logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(executor *executorImp) {
		executor.Logger = logger
	}
}

// WithStartFunc provides customized start behavior for executorImp
func WithStartFunc(startFunc func(cmd *exec.Cmd) error) Option {
	return func(executor *executorImp) {
		executor.StartFunc = startFunc
	}
}

// NewExecutor creates a new executorImp with a noop logger and a default start function
func NewExecutor(opts ...Option) Executor {
	executor := &executorImp{
		Logger:    zap.NewNop().Sugar(),
		StartFunc: func(cmd *exec.Cmd) error { return cmd.Start() },
	}
	for _, opt := range opts {
		opt(executor)
	}
	return executor
}

// Start logs the Path/Args, wires the pipes and calls StartFunc.
func (l *executorImp) Start(cmd *exec.Cmd, env []string, stderr io.Writer) (Process, error) {
	l.logCommand(cmd)
	if env != nil {
		cmd.Env = env
	}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}

	// A plain os.Pipe is used for stdout so that reaping the process does not close
	// the read end while buffered output is still being consumed.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW

	if err := l.StartFunc(cmd); err != nil {
		stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, err
	}
	stdoutW.Close()

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdoutR,
		done:   make(chan struct{}),
	}
	go p.wait()

	l.Logger.Infow("Started", "Path", cmd.Path, "Pid", p.Pid())
	return p, nil
}

// Logs the command specified: Path, Dir, Args
func (l *executorImp) logCommand(cmd *exec.Cmd) {
	args := []string{}
	if len(cmd.Args) > 1 {
		args = cmd.Args[1:] // First arg is always the command itself
	}

	l.Logger.Infow("Exec",
		"Path", cmd.Path,
		"Dir", cmd.Dir,
		"Args", args,
	)
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	done     chan struct{}
	exitCode int
	err      error

	closeOnce sync.Once
}

func (p *process) wait() {
	err := p.cmd.Wait()
	p.exitCode = -1
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	p.err = err
	close(p.done)
}

func (p *process) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

func (p *process) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// Close closes both ends of the stream. The process is expected to exit once its stdin closes.
// Pipes already closed by the exit of the process are not an error.
func (p *process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = multierr.Append(ignoreClosed(p.stdin.Close()), ignoreClosed(p.stdout.Close()))
	})
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

func (p *process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) ExitCode() int {
	<-p.done
	return p.exitCode
}

func (p *process) Err() error {
	<-p.done
	return p.err
}

func (p *process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

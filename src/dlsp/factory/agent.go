package factory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/uber/doc-lsp/src/dlsp/entity"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/multierr"
)

// AgentBuild is a build request received by a FakeAgent, answered by the test.
type AgentBuild struct {
	Params json.RawMessage
	reply  func(result any, err error)
}

// Reply answers the build. A *jsonrpc2.Error reports a failed build.
func (b *AgentBuild) Reply(result any, err error) {
	b.reply(result, err)
}

// FakeAgent is an in-process build agent speaking the agent protocol over pipes. It implements executor.Process.
type FakeAgent struct {
	App entity.AppInfo
	// CreateAppErr, if set, rejects the handshake.
	CreateAppErr *jsonrpc2.Error
	// HangOnCreate never answers the handshake.
	HangOnCreate bool
	// IgnoreExit keeps the agent running after the exit notification, until it is killed.
	IgnoreExit bool
	// Builds receives every build request when non-nil. Otherwise builds succeed with no warnings.
	Builds chan *AgentBuild

	clientR *io.PipeReader
	clientW *io.PipeWriter
	agentR  *io.PipeReader
	agentW  *io.PipeWriter
	stream  jsonrpc2.Stream
	writeMu sync.Mutex

	mu       sync.Mutex
	received []string

	exitOnce sync.Once
	done     chan struct{}
	exitCode int
}

// NewFakeAgent returns an agent that answers the handshake with a sample app.
func NewFakeAgent() *FakeAgent {
	agentR, clientW := io.Pipe()
	clientR, agentW := io.Pipe()
	a := &FakeAgent{
		App: entity.AppInfo{
			Version:     "7.2.6",
			ConfDir:     "/docs",
			SrcDir:      "/docs",
			BuildDir:    "/docs/_build/html",
			BuilderName: "html",
			Command:     []string{"sphinx-build", "-M", "html", "/docs", "/docs/_build"},
		},
		clientR: clientR,
		clientW: clientW,
		agentR:  agentR,
		agentW:  agentW,
		done:    make(chan struct{}),
	}
	a.stream = jsonrpc2.NewStream(&pipeConn{r: agentR, w: agentW})
	return a
}

// Run serves requests until the client closes its end or the agent exits. Call it in a goroutine.
func (a *FakeAgent) Run() {
	ctx := context.Background()
	for {
		msg, _, err := a.stream.Read(ctx)
		if err != nil {
			a.Exit(0)
			return
		}

		switch msg := msg.(type) {
		case *jsonrpc2.Call:
			a.record(msg.Method())
			a.handleCall(ctx, msg)
		case *jsonrpc2.Notification:
			a.record(msg.Method())
			if msg.Method() == "exit" && !a.IgnoreExit {
				a.Exit(0)
				return
			}
		}
	}
}

func (a *FakeAgent) handleCall(ctx context.Context, call *jsonrpc2.Call) {
	reply := func(result any, err error) {
		resp, rerr := jsonrpc2.NewResponse(call.ID(), result, err)
		if rerr != nil {
			return
		}
		a.write(ctx, resp)
	}

	switch call.Method() {
	case "agent/createApp":
		switch {
		case a.HangOnCreate:
		case a.CreateAppErr != nil:
			reply(nil, a.CreateAppErr)
		default:
			reply(a.App, nil)
		}
	case "agent/build":
		if a.Builds == nil {
			reply(map[string]any{"warnings": 0}, nil)
			return
		}
		go func() {
			select {
			case a.Builds <- &AgentBuild{Params: call.Params(), reply: reply}:
			case <-a.done:
			}
		}()
	default:
		reply(nil, jsonrpc2.NewError(jsonrpc2.MethodNotFound, call.Method()))
	}
}

// Notify sends an event to the client.
func (a *FakeAgent) Notify(method string, params any) error {
	n, err := jsonrpc2.NewNotification(method, params)
	if err != nil {
		return err
	}
	return a.write(context.Background(), n)
}

// Received lists the methods received so far, in order.
func (a *FakeAgent) Received() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string{}, a.received...)
}

// Exit simulates the process exiting with the given code.
func (a *FakeAgent) Exit(code int) {
	a.exitOnce.Do(func() {
		a.exitCode = code
		a.agentW.Close()
		a.agentR.Close()
		close(a.done)
	})
}

func (a *FakeAgent) record(method string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.received = append(a.received, method)
}

func (a *FakeAgent) write(ctx context.Context, msg jsonrpc2.Message) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_, err := a.stream.Write(ctx, msg)
	return err
}

// Read implements executor.Process.
func (a *FakeAgent) Read(p []byte) (int, error) { return a.clientR.Read(p) }

// Write implements executor.Process.
func (a *FakeAgent) Write(p []byte) (int, error) { return a.clientW.Write(p) }

// Close implements executor.Process.
func (a *FakeAgent) Close() error {
	return multierr.Append(a.clientW.Close(), a.clientR.Close())
}

// Pid implements executor.Process.
func (a *FakeAgent) Pid() int { return 4242 }

// Done implements executor.Process.
func (a *FakeAgent) Done() <-chan struct{} { return a.done }

// ExitCode implements executor.Process.
func (a *FakeAgent) ExitCode() int {
	<-a.done
	return a.exitCode
}

// Err implements executor.Process.
func (a *FakeAgent) Err() error {
	<-a.done
	if a.exitCode != 0 {
		return errors.New("signal: killed")
	}
	return nil
}

// Kill implements executor.Process.
func (a *FakeAgent) Kill() error {
	a.Exit(-1)
	return nil
}

type pipeConn struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipeConn) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeConn) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipeConn) Close() error {
	return multierr.Append(p.r.Close(), p.w.Close())
}

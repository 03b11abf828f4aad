package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	dlsperrors "github.com/uber/doc-lsp/src/dlsp/internal/errors"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAgent struct {
	t      *testing.T
	conn   net.Conn
	stream jsonrpc2.Stream
}

func newTestTransport(t *testing.T, opts Options) (*transport, *fakeAgent) {
	clientSide, agentSide := net.Pipe()
	tr := New(clientSide, opts).(*transport)
	agent := &fakeAgent{t: t, conn: agentSide, stream: jsonrpc2.NewStream(agentSide)}
	t.Cleanup(func() {
		tr.Close()
		agentSide.Close()
		<-tr.Done()
	})
	return tr, agent
}

func (a *fakeAgent) readCall() *jsonrpc2.Call {
	msg, _, err := a.stream.Read(context.Background())
	require.NoError(a.t, err)
	call, ok := msg.(*jsonrpc2.Call)
	require.True(a.t, ok, "expected a call, got %T", msg)
	return call
}

func (a *fakeAgent) reply(id jsonrpc2.ID, result any, err error) {
	resp, rerr := jsonrpc2.NewResponse(id, result, err)
	require.NoError(a.t, rerr)
	_, werr := a.stream.Write(context.Background(), resp)
	require.NoError(a.t, werr)
}

func (a *fakeAgent) notify(method string, params any) {
	n, err := jsonrpc2.NewNotification(method, params)
	require.NoError(a.t, err)
	_, err = a.stream.Write(context.Background(), n)
	require.NoError(a.t, err)
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestCall(t *testing.T) {
	ctx := context.Background()
	tr, agent := newTestTransport(t, Options{})
	tr.Start(ctx)

	go func() {
		call := agent.readCall()
		assert.Equal(t, "agent/createApp", call.Method())
		var params map[string]string
		assert.NoError(t, json.Unmarshal(call.Params(), &params))
		assert.Equal(t, "/repo/docs", params["confDir"])
		agent.reply(call.ID(), map[string]string{"version": "7.2.6"}, nil)
	}()

	var result struct {
		Version string `json:"version"`
	}
	require.NoError(t, tr.Call(ctx, "agent/createApp", map[string]string{"confDir": "/repo/docs"}, &result))
	assert.Equal(t, "7.2.6", result.Version)
}

func TestSendAssignsIncreasingIDs(t *testing.T) {
	ctx := context.Background()
	tr, agent := newTestTransport(t, Options{})
	tr.Start(ctx)

	ids := make(chan jsonrpc2.ID, 3)
	go func() {
		for i := 0; i < 3; i++ {
			ids <- agent.readCall().ID()
		}
	}()

	var sent []*Pending
	for i := 0; i < 3; i++ {
		p, err := tr.Send(ctx, "agent/ping", nil)
		require.NoError(t, err)
		sent = append(sent, p)
	}

	for i, p := range sent {
		got := <-ids
		assert.Equal(t, jsonrpc2.NewNumberID(int32(i+1)), got)
		assert.Equal(t, got, p.ID())
	}
}

func TestEventsDispatchedInOrder(t *testing.T) {
	ctx := context.Background()
	tr, agent := newTestTransport(t, Options{})

	var mu sync.Mutex
	var got []string
	all := make(chan struct{})
	record := func(method string) EventHandler {
		return func(ctx context.Context, params json.RawMessage) {
			var p struct {
				N int `json:"n"`
			}
			assert.NoError(t, json.Unmarshal(params, &p))
			mu.Lock()
			defer mu.Unlock()
			got = append(got, fmt.Sprintf("%s:%d", method, p.N))
			if len(got) == 4 {
				close(all)
			}
		}
	}
	tr.On("window/logMessage", record("log"))
	tr.On("$/progress", record("progress"))
	tr.Start(ctx)

	acked := make(chan struct{})
	go func() {
		defer close(acked)
		agent.notify("window/logMessage", map[string]int{"n": 1})
		agent.notify("$/progress", map[string]int{"n": 2})
		agent.notify("unknown/event", map[string]int{"n": 0})
		agent.notify("window/logMessage", map[string]int{"n": 3})

		// Agent-initiated requests are dispatched like events and acknowledged.
		call, err := jsonrpc2.NewCall(jsonrpc2.NewStringID("a1"), "$/progress", map[string]int{"n": 4})
		if !assert.NoError(t, err) {
			return
		}
		if _, err := agent.stream.Write(ctx, call); !assert.NoError(t, err) {
			return
		}
		msg, _, err := agent.stream.Read(ctx)
		if !assert.NoError(t, err) {
			return
		}
		resp, ok := msg.(*jsonrpc2.Response)
		if assert.True(t, ok, "expected a response, got %T", msg) {
			assert.Equal(t, jsonrpc2.NewStringID("a1"), resp.ID())
			assert.NoError(t, resp.Err())
		}
	}()

	waitDone(t, all)
	// The agent side must be finished before cleanup closes the pipe under it.
	waitDone(t, acked)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"log:1", "progress:2", "log:3", "progress:4"}, got)
}

func TestErrorResponse(t *testing.T) {
	ctx := context.Background()
	tr, agent := newTestTransport(t, Options{})
	tr.Start(ctx)

	go func() {
		call := agent.readCall()
		agent.reply(call.ID(), nil, jsonrpc2.NewError(jsonrpc2.InternalError, "conf.py raised"))
	}()

	err := tr.Call(ctx, "agent/build", nil, nil)
	var rpcErr *jsonrpc2.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "conf.py raised", rpcErr.Message)
	assert.NoError(t, tr.Err(), "an error response does not affect the transport")
}

func TestCancelDropsLateResponse(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	scope := tally.NewTestScope("", nil)
	tr, agent := newTestTransport(t, Options{Logger: zap.New(core).Sugar(), Stats: scope})
	tr.Start(ctx)

	calls := make(chan *jsonrpc2.Call, 1)
	go func() { calls <- agent.readCall() }()

	p, err := tr.Send(ctx, "agent/build", nil)
	require.NoError(t, err)
	call := <-calls

	p.Cancel()
	waitDone(t, p.Done())
	assert.ErrorIs(t, p.Result(ctx, nil), context.Canceled)

	agent.reply(call.ID(), map[string]int{"warnings": 0}, nil)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("dropping response with no pending request").Len() == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), scope.Snapshot().Counters()["unmatched_responses+"].Value())
	assert.NoError(t, tr.Err())
}

func TestCallContextTimeout(t *testing.T) {
	tr, agent := newTestTransport(t, Options{})
	tr.Start(context.Background())
	go agent.readCall()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tr.Call(ctx, "agent/build", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	tr.mu.Lock()
	assert.Empty(t, tr.pending)
	tr.mu.Unlock()
}

func TestMalformedFrameFailsPending(t *testing.T) {
	ctx := context.Background()
	tr, agent := newTestTransport(t, Options{})
	tr.Start(ctx)

	calls := make(chan struct{}, 2)
	go func() {
		agent.readCall()
		agent.readCall()
		calls <- struct{}{}
	}()

	first, err := tr.Send(ctx, "agent/build", nil)
	require.NoError(t, err)
	second, err := tr.Send(ctx, "agent/query", nil)
	require.NoError(t, err)
	<-calls

	body := `{"jsonrpc":"2.0",`
	_, err = fmt.Fprintf(agent.conn, "Content-Length: %d\r\n\r\n%s", len(body), body)
	require.NoError(t, err)

	waitDone(t, tr.Done())
	for _, p := range []*Pending{first, second} {
		waitDone(t, p.Done())
		var ioErr *dlsperrors.IOError
		assert.ErrorAs(t, p.Result(ctx, nil), &ioErr)
	}

	_, err = tr.Send(ctx, "agent/build", nil)
	var ioErr *dlsperrors.IOError
	assert.ErrorAs(t, err, &ioErr)
	assert.Error(t, tr.Notify(ctx, "agent/exit", nil))
}

func TestPartialFramesAreBuffered(t *testing.T) {
	ctx := context.Background()
	tr, agent := newTestTransport(t, Options{})
	tr.Start(ctx)

	go func() {
		call := agent.readCall()
		resp, err := jsonrpc2.NewResponse(call.ID(), map[string]int{"warnings": 2}, nil)
		require.NoError(t, err)
		data, err := json.Marshal(resp)
		require.NoError(t, err)
		frame := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(data), data)
		for i := 0; i < len(frame); i += 7 {
			end := i + 7
			if end > len(frame) {
				end = len(frame)
			}
			_, err := agent.conn.Write([]byte(frame[i:end]))
			require.NoError(t, err)
			time.Sleep(time.Millisecond)
		}
	}()

	var result struct {
		Warnings int `json:"warnings"`
	}
	require.NoError(t, tr.Call(ctx, "agent/build", nil, &result))
	assert.Equal(t, 2, result.Warnings)
}

func TestCloseFailsPending(t *testing.T) {
	ctx := context.Background()
	tr, agent := newTestTransport(t, Options{})
	tr.Start(ctx)
	go agent.readCall()

	p, err := tr.Send(ctx, "agent/build", nil)
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	waitDone(t, p.Done())
	err = p.Result(ctx, nil)
	assert.ErrorIs(t, err, dlsperrors.ErrTransportClosed)
	assert.ErrorIs(t, tr.Err(), dlsperrors.ErrTransportClosed)
	assert.NoError(t, tr.Close(), "closing twice is a no-op")
}

func TestNotify(t *testing.T) {
	ctx := context.Background()
	tr, agent := newTestTransport(t, Options{})
	tr.Start(ctx)

	got := make(chan jsonrpc2.Message, 1)
	go func() {
		msg, _, err := agent.stream.Read(ctx)
		assert.NoError(t, err)
		got <- msg
	}()

	require.NoError(t, tr.Notify(ctx, "agent/didChangeConfig", map[string]bool{"ok": true}))
	msg := <-got
	n, ok := msg.(*jsonrpc2.Notification)
	require.True(t, ok)
	assert.Equal(t, "agent/didChangeConfig", n.Method())
}

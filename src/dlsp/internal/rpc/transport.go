// Package rpc implements the duplex JSON-RPC channel used to talk to build agents over their standard streams.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/uber-go/tally"
	dlsperrors "github.com/uber/doc-lsp/src/dlsp/internal/errors"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"
)

// EventHandler receives a message initiated by the remote side. Handlers for one transport are invoked
// sequentially in arrival order on the reader goroutine, so they must not block on calls to the same transport.
type EventHandler func(ctx context.Context, params json.RawMessage)

// Transport sends requests to a remote peer and correlates their responses.
type Transport interface {
	// Start begins reading from the underlying stream. Handlers registered with On should be in place first.
	Start(ctx context.Context)
	// Send writes a request and returns immediately with a handle for its eventual response.
	Send(ctx context.Context, method string, params any) (*Pending, error)
	// Call sends a request and waits for its response, decoding the result into result when non-nil.
	Call(ctx context.Context, method string, params any, result any) error
	// Notify writes a notification, which has no response.
	Notify(ctx context.Context, method string, params any) error
	// On registers the handler for notifications and requests with the given method, replacing any earlier one.
	On(method string, handler EventHandler)
	// Close shuts the stream and fails every outstanding request.
	Close() error
	// Done is closed once the transport has shut down for any reason.
	Done() <-chan struct{}
	// Err reports why the transport shut down; nil while it is running.
	Err() error
}

// Options configures a transport.
type Options struct {
	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

type transport struct {
	stream jsonrpc2.Stream
	logger *zap.SugaredLogger
	stats  tally.Scope

	seq     atomic.Int32
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[jsonrpc2.ID]*Pending
	closing bool
	err     error

	handlersMu sync.RWMutex
	handlers   map[string]EventHandler

	startOnce sync.Once
	done      chan struct{}
}

// New creates a transport framed with Content-Length headers over the given stream.
func New(rwc io.ReadWriteCloser, opts Options) Transport {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Stats == nil {
		opts.Stats = tally.NoopScope
	}

	return &transport{
		stream:   jsonrpc2.NewStream(rwc),
		logger:   opts.Logger,
		stats:    opts.Stats,
		pending:  make(map[jsonrpc2.ID]*Pending),
		handlers: make(map[string]EventHandler),
		done:     make(chan struct{}),
	}
}

func (t *transport) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		go t.run(ctx)
	})
}

func (t *transport) Send(ctx context.Context, method string, params any) (*Pending, error) {
	t.mu.Lock()
	if t.err != nil || t.closing {
		t.mu.Unlock()
		return nil, &dlsperrors.IOError{Err: dlsperrors.ErrTransportClosed}
	}

	id := jsonrpc2.NewNumberID(t.seq.Add(1))
	call, err := jsonrpc2.NewCall(id, method, params)
	if err != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("marshaling call parameters: %w", err)
	}

	// Register before writing, otherwise the response may race the registration.
	p := newPending(id, method, t.unregister)
	t.pending[id] = p
	t.mu.Unlock()

	if err := t.write(ctx, call); err != nil {
		t.unregister(id)
		if ctx.Err() != nil {
			return nil, err
		}
		// A failed write leaves the stream in an unknown state.
		t.fail(err)
		return nil, &dlsperrors.IOError{Err: err}
	}

	t.stats.Counter("requests").Inc(1)
	return p, nil
}

func (t *transport) Call(ctx context.Context, method string, params any, result any) error {
	p, err := t.Send(ctx, method, params)
	if err != nil {
		return err
	}
	return p.Result(ctx, result)
}

func (t *transport) Notify(ctx context.Context, method string, params any) error {
	if err := t.Err(); err != nil {
		return &dlsperrors.IOError{Err: err}
	}

	notification, err := jsonrpc2.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("marshaling notify parameters: %w", err)
	}
	return t.write(ctx, notification)
}

func (t *transport) On(method string, handler EventHandler) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[method] = handler
}

func (t *transport) Close() error {
	t.mu.Lock()
	if t.err != nil {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	t.mu.Unlock()

	t.fail(dlsperrors.ErrTransportClosed)
	return nil
}

func (t *transport) Done() <-chan struct{} {
	return t.done
}

func (t *transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *transport) write(ctx context.Context, msg jsonrpc2.Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.stream.Write(ctx, msg); err != nil {
		return fmt.Errorf("write to stream: %w", err)
	}
	return nil
}

func (t *transport) run(ctx context.Context) {
	for {
		msg, _, err := t.stream.Read(ctx)
		if err != nil {
			t.fail(err)
			return
		}

		switch msg := msg.(type) {
		case *jsonrpc2.Response:
			t.resolve(msg)

		case *jsonrpc2.Notification:
			t.dispatch(ctx, msg.Method(), msg.Params())

		case *jsonrpc2.Call:
			t.dispatch(ctx, msg.Method(), msg.Params())
			// Agent-initiated requests are acknowledged with an empty result.
			resp, err := jsonrpc2.NewResponse(msg.ID(), nil, nil)
			if err == nil {
				err = t.write(ctx, resp)
			}
			if err != nil {
				t.logger.Warnw("replying to agent request", "method", msg.Method(), zap.Error(err))
			}
		}
	}
}

func (t *transport) resolve(resp *jsonrpc2.Response) {
	t.mu.Lock()
	p, ok := t.pending[resp.ID()]
	delete(t.pending, resp.ID())
	t.mu.Unlock()

	if !ok {
		t.stats.Counter("unmatched_responses").Inc(1)
		t.logger.Warnw("dropping response with no pending request", "id", fmt.Sprintf("%v", resp.ID()))
		return
	}

	p.complete(resp.Result(), resp.Err())
}

func (t *transport) dispatch(ctx context.Context, method string, params json.RawMessage) {
	t.handlersMu.RLock()
	handler, ok := t.handlers[method]
	t.handlersMu.RUnlock()

	if !ok {
		t.logger.Debugw("no handler for agent message", "method", method)
		return
	}
	handler(ctx, params)
}

func (t *transport) unregister(id jsonrpc2.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, id)
}

// fail records the first terminal error, closes the stream and fails every pending request.
func (t *transport) fail(cause error) {
	t.mu.Lock()
	if t.err != nil {
		t.mu.Unlock()
		return
	}
	if t.closing {
		cause = dlsperrors.ErrTransportClosed
	}
	t.err = cause
	pending := t.pending
	t.pending = make(map[jsonrpc2.ID]*Pending)
	t.mu.Unlock()

	if err := t.stream.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		t.logger.Debugw("closing stream", zap.Error(err))
	}

	ioErr := &dlsperrors.IOError{Err: cause}
	for _, p := range pending {
		p.complete(nil, ioErr)
	}
	if len(pending) > 0 {
		t.stats.Counter("failed_requests").Inc(int64(len(pending)))
	}
	close(t.done)
}

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.lsp.dev/jsonrpc2"
)

// Pending is the handle for a request awaiting its response.
type Pending struct {
	id         jsonrpc2.ID
	method     string
	unregister func(jsonrpc2.ID)

	once   sync.Once
	done   chan struct{}
	result json.RawMessage
	err    error
}

func newPending(id jsonrpc2.ID, method string, unregister func(jsonrpc2.ID)) *Pending {
	return &Pending{
		id:         id,
		method:     method,
		unregister: unregister,
		done:       make(chan struct{}),
	}
}

// ID returns the correlation id assigned to the request.
func (p *Pending) ID() jsonrpc2.ID {
	return p.id
}

// Method returns the method of the request.
func (p *Pending) Method() string {
	return p.method
}

// Done is closed once the request completes, fails or is cancelled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Result waits for completion and decodes the result into out when non-nil.
// If ctx ends first the request is cancelled.
func (p *Pending) Result(ctx context.Context, out any) error {
	select {
	case <-p.done:
	case <-ctx.Done():
		p.Cancel()
		return ctx.Err()
	}

	if p.err != nil {
		return p.err
	}
	if out == nil || len(p.result) == 0 || string(p.result) == "null" {
		return nil
	}
	if err := json.Unmarshal(p.result, out); err != nil {
		return fmt.Errorf("unmarshaling result of %s: %w", p.method, err)
	}
	return nil
}

// Cancel stops waiting for the response. The remote side may still process the request;
// a late response is dropped by the transport.
func (p *Pending) Cancel() {
	p.unregister(p.id)
	p.complete(nil, context.Canceled)
}

func (p *Pending) complete(result json.RawMessage, err error) {
	p.once.Do(func() {
		p.result = result
		p.err = err
		close(p.done)
	})
}

// Package dlspdaemon implements the dlsp-daemon service's JSON-RPC handlers.
package dlspdaemon

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	controller "github.com/uber/doc-lsp/src/dlsp/controller/dlsp-daemon"
	"github.com/uber/doc-lsp/src/dlsp/internal/jsonrpcfx"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"go.lsp.dev/jsonrpc2"
)

// Handler accepts editor connections and routes their requests to the controller.
type Handler interface {
	jsonrpcfx.ConnectionManager
}

type jsonRPCConnectionManager struct {
	ctrl  controller.Controller
	stats tally.Scope
}

// New constructs a new dlsp-daemon Handler and registers it with the JSON-RPC server.
func New(ctrl controller.Controller, jsonrpcmod jsonrpcfx.JSONRPCModule, stats tally.Scope) (Handler, error) {
	c := &jsonRPCConnectionManager{
		ctrl:  ctrl,
		stats: stats.SubScope("json_rpc"),
	}
	if err := jsonrpcmod.RegisterConnectionManager(c); err != nil {
		return nil, fmt.Errorf("registering connection manager: %w", err)
	}
	return c, nil
}

// NewConnection will store a new connection and return a router that includes its UUID.
func (c *jsonRPCConnectionManager) NewConnection(ctx context.Context, conn *jsonrpc2.Conn) (router jsonrpcfx.Router, err error) {
	id, err := c.ctrl.InitSession(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("error while creating new connection: %w", err)
	}
	c.stats.Counter("connections").Inc(1)

	r := jsonRPCRouter{
		dlspdaemon: c.ctrl,
		uuid:       id,
		stats:      c.stats,
	}

	return &r, nil
}

// RemoveConnection cleans up a closed connection.
func (c *jsonRPCConnectionManager) RemoveConnection(ctx context.Context, id uuid.UUID) {
	// Ensure session is removed even if no Exit call has been received.
	ctx = mapper.SessionUUIDToContext(ctx, id)
	c.ctrl.EndSession(ctx, id)
}

package dlspdaemon

import (
	"context"

	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"go.lsp.dev/jsonrpc2"
)

// Restart restarts the listed build agent clients, or all of them.
func (r *jsonRPCRouter) Restart(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToRestartParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	err = r.dlspdaemon.Restart(ctx, params)
	return reply(ctx, nil, err)
}

// Preview replies with the port of the preview server of the current project.
func (r *jsonRPCRouter) Preview(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToPreviewParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	result, err := r.dlspdaemon.Preview(ctx, params)
	if err != nil {
		return reply(ctx, nil, err)
	}
	return reply(ctx, result, nil)
}

func (r *jsonRPCRouter) Clients(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	result, err := r.dlspdaemon.Clients(ctx)
	if err != nil {
		return reply(ctx, nil, err)
	}
	return reply(ctx, result, nil)
}

// EditorScroll is sent by the editor when its visible range moves.
func (r *jsonRPCRouter) EditorScroll(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToScrollParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	err = r.dlspdaemon.EditorScroll(ctx, params)
	return reply(ctx, nil, err)
}

package dlspdaemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uber/doc-lsp/src/dlsp/entity"
	"go.lsp.dev/protocol"
)

// Commands offered through workspace/executeCommand, mirroring the custom request methods.
const (
	CommandRestart = "dlsp.restart"
	CommandPreview = "dlsp.preview"
	CommandClients = "dlsp.clients"
)

var _commands = []string{CommandRestart, CommandPreview, CommandClients}

// Restart restarts the given clients, or every client when none is given.
func (c *controller) Restart(ctx context.Context, params *entity.RestartParams) error {
	var ids []string
	if params != nil {
		ids = params.IDs()
	}
	c.logger.Infow("restart requested", "clients", ids)
	if err := c.registry.Restart(ctx, ids); err != nil {
		return fmt.Errorf("restarting clients: %w", err)
	}
	return nil
}

// Preview starts the preview server of the current project.
func (c *controller) Preview(ctx context.Context, params *entity.PreviewParams) (*entity.PreviewResult, error) {
	if params == nil {
		params = &entity.PreviewParams{}
	}
	result, err := c.preview.Preview(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("starting preview: %w", err)
	}
	return result, nil
}

// Clients lists the build agent clients of every project.
func (c *controller) Clients(ctx context.Context) ([]entity.ClientSummary, error) {
	return c.registry.Clients(), nil
}

// EditorScroll scrolls the previews of a document to follow the editor.
func (c *controller) EditorScroll(ctx context.Context, params *entity.ScrollParams) error {
	if params == nil || params.URI == "" {
		return fmt.Errorf("editor scroll requires a document uri")
	}
	return c.preview.EditorScrolled(ctx, params.URI, params.Line)
}

// executeBuiltinCommand runs a dlsp command. Commands owned by plugins return a nil result.
func (c *controller) executeBuiltinCommand(ctx context.Context, params *protocol.ExecuteCommandParams) (interface{}, error) {
	switch params.Command {
	case CommandRestart:
		restart := &entity.RestartParams{}
		if err := commandArgument(params, restart); err != nil {
			return nil, err
		}
		return nil, c.Restart(ctx, restart)
	case CommandPreview:
		preview := &entity.PreviewParams{}
		if err := commandArgument(params, preview); err != nil {
			return nil, err
		}
		return c.Preview(ctx, preview)
	case CommandClients:
		return c.Clients(ctx)
	}
	return nil, nil
}

// commandArgument decodes the optional first argument of a command into out.
func commandArgument(params *protocol.ExecuteCommandParams, out interface{}) error {
	if len(params.Arguments) == 0 || params.Arguments[0] == nil {
		return nil
	}
	b, err := json.Marshal(params.Arguments[0])
	if err != nil {
		return fmt.Errorf("encoding %s argument: %w", params.Command, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decoding %s argument: %w", params.Command, err)
	}
	return nil
}

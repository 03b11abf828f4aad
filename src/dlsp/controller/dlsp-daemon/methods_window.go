package dlspdaemon

import (
	"context"

	dlspplugin "github.com/uber/doc-lsp/src/dlsp/entity/dlsp-plugin"
	"go.lsp.dev/protocol"
)

func (c *controller) WorkDoneProgressCancel(ctx context.Context, params *protocol.WorkDoneProgressCancelParams) error {
	call := func(ctx context.Context, m *dlspplugin.Methods) {
		if err := m.WorkDoneProgressCancel(ctx, params); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}
	return c.executePluginMethods(ctx, protocol.MethodWorkDoneProgressCancel, call, call)
}

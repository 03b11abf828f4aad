package mapper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dlspplugin "github.com/uber/doc-lsp/src/dlsp/entity/dlsp-plugin"
	"github.com/uber/doc-lsp/src/dlsp/factory"
	"go.lsp.dev/protocol"
)

func TestPluginInfoToRuntimePrioritizedMethods(t *testing.T) {
	t.Run("valid plugins", func(t *testing.T) {
		infos := []dlspplugin.PluginInfo{factory.PluginInfoValid(0), factory.PluginInfoValid(1)}
		save := func(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error { return nil }
		infos = append(infos, dlspplugin.PluginInfo{
			Priorities: map[string]dlspplugin.Priority{
				protocol.MethodTextDocumentDidOpen: dlspplugin.PriorityAsync,
				protocol.MethodTextDocumentDidSave: dlspplugin.PriorityRegular,
			},
			Methods: &dlspplugin.Methods{
				PluginNameKey: "async-plugin",
				DidOpen:       func(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error { return nil },
				DidSave:       save,
			},
			NameKey: "async-plugin",
		})

		result, err := PluginInfoToRuntimePrioritizedMethods(infos)
		require.NoError(t, err)

		didOpen := result[protocol.MethodTextDocumentDidOpen]
		require.Len(t, didOpen.Sync, 2)
		require.Len(t, didOpen.Async, 1)
		assert.Equal(t, "async-plugin", didOpen.Async[0].PluginNameKey)

		didSave := result[protocol.MethodTextDocumentDidSave]
		assert.Len(t, didSave.Sync, 1)
		assert.Empty(t, didSave.Async)
	})

	t.Run("invalid plugin", func(t *testing.T) {
		_, err := PluginInfoToRuntimePrioritizedMethods([]dlspplugin.PluginInfo{factory.PluginInfoValid(0), factory.PluginInfoInvalid(1)})
		assert.Error(t, err)
	})
}

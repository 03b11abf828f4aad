// Package factory contains constructors for values commonly needed in tests.
package factory

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	dlspplugin "github.com/uber/doc-lsp/src/dlsp/entity/dlsp-plugin"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// UUID is a user-defined factory for a random uuid.UUID.
func UUID() uuid.UUID {
	return uuid.Must(uuid.NewV4())
}

// JSONRPCRequest is a user-defined factory for a JSON-RPC request containing the specified method and parameters.
func JSONRPCRequest(method string, params interface{}) jsonrpc2.Request {
	req, _ := jsonrpc2.NewCall(jsonrpc2.NewNumberID(5), method, params)
	return req
}

// JSONRPCNotification is a factory for a JSON-RPC notification containing the specified method and parameters.
func JSONRPCNotification(method string, params interface{}) jsonrpc2.Request {
	req, _ := jsonrpc2.NewNotification(method, params)
	return req
}

// PluginInfoValid is a factory for PluginInfo that passes validation.
func PluginInfoValid(id int) dlspplugin.PluginInfo {
	sampleDidOpenFunc := func(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
		return nil
	}
	return dlspplugin.PluginInfo{
		Priorities: map[string]dlspplugin.Priority{
			protocol.MethodTextDocumentDidOpen: dlspplugin.PriorityHigh,
		},
		Methods: &dlspplugin.Methods{
			PluginNameKey: fmt.Sprintf("test-plugin-%v", id),

			DidOpen: sampleDidOpenFunc,
		},
		NameKey: fmt.Sprintf("test-plugin-%v", id),
	}
}

// PluginInfoInvalid is a factory for PluginInfo that fails validation.
func PluginInfoInvalid(id int) dlspplugin.PluginInfo {
	return dlspplugin.PluginInfo{
		Priorities: map[string]dlspplugin.Priority{
			protocol.MethodTextDocumentDidOpen: dlspplugin.PriorityHigh,
		},
		Methods: &dlspplugin.Methods{},
		NameKey: fmt.Sprintf("test-plugin-%v", id),
	}
}

// Configuration returns a project configuration holding the given options, as if supplied at startup.
func Configuration(values map[string]any) entity.Configuration {
	cfg := entity.Configuration{Values: make(map[string]entity.ConfigValue, len(values))}
	for k, v := range values {
		cfg.Values[k] = entity.ConfigValue{Value: v, Source: entity.SourceStartup, Scope: entity.ScopeProject}
	}
	return cfg
}

package dlspdaemon

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	controller "github.com/uber/doc-lsp/src/dlsp/controller/dlsp-daemon"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

type jsonRPCRouter struct {
	dlspdaemon controller.Controller
	uuid       uuid.UUID
	stats      tally.Scope
}

// HandleReq handles routing for a single request.
func (r *jsonRPCRouter) HandleReq(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	ctx = mapper.SessionUUIDToContext(ctx, r.uuid)

	// Results are passed back to reply to be returned to the client.
	switch req.Method() {
	// Lifecycle related methods.
	case protocol.MethodInitialize:
		return r.Initialize(ctx, reply, req)

	case protocol.MethodInitialized:
		return r.Initialized(ctx, reply, req)

	case protocol.MethodShutdown:
		return r.Shutdown(ctx, reply, req)

	case protocol.MethodExit:
		return r.Exit(ctx, reply, req)

	case entity.MethodRequestFullShutdown:
		return r.RequestFullShutdown(ctx, reply, req)

	// Document related methods.
	case protocol.MethodTextDocumentDidChange:
		return r.DidChange(ctx, reply, req)

	case protocol.MethodWorkspaceDidChangeWatchedFiles:
		return r.DidChangeWatchedFiles(ctx, reply, req)

	case protocol.MethodTextDocumentDidOpen:
		return r.DidOpen(ctx, reply, req)

	case protocol.MethodTextDocumentDidClose:
		return r.DidClose(ctx, reply, req)

	case protocol.MethodTextDocumentDidSave:
		return r.DidSave(ctx, reply, req)

	// Workspace methods
	case protocol.MethodWorkspaceDidChangeConfiguration:
		return r.DidChangeConfiguration(ctx, reply, req)

	case protocol.MethodWorkspaceDidChangeWorkspaceFolders:
		return r.DidChangeWorkspaceFolders(ctx, reply, req)

	case protocol.MethodWorkspaceExecuteCommand:
		return r.ExecuteCommand(ctx, reply, req)

	// Window methods
	case protocol.MethodWorkDoneProgressCancel:
		return r.WorkDoneProgressCancel(ctx, reply, req)

	// Build agent and preview commands.
	case entity.MethodRestart:
		return r.Restart(ctx, reply, req)

	case entity.MethodPreview:
		return r.Preview(ctx, reply, req)

	case entity.MethodClients:
		return r.Clients(ctx, reply, req)

	case entity.MethodEditorScroll:
		return r.EditorScroll(ctx, reply, req)

	default:
		r.stats.Tagged(map[string]string{"method": req.Method()}).Counter("method_not_found").Inc(1)
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}
}

func (r *jsonRPCRouter) UUID() uuid.UUID {
	return r.uuid
}

package dlspplugin

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"go.lsp.dev/protocol"
)

func fullMethods(name string) *Methods {
	return &Methods{
		PluginNameKey: name,
		Initialize: func(ctx context.Context, params *protocol.InitializeParams, result *protocol.InitializeResult) error {
			return nil
		},
		Initialized:               func(ctx context.Context, params *protocol.InitializedParams) error { return nil },
		Shutdown:                  func(ctx context.Context) error { return nil },
		Exit:                      func(ctx context.Context) error { return nil },
		DidChange:                 func(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error { return nil },
		DidChangeWatchedFiles:     func(ctx context.Context, params *protocol.DidChangeWatchedFilesParams) error { return nil },
		DidOpen:                   func(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error { return nil },
		DidClose:                  func(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error { return nil },
		DidSave:                   func(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error { return nil },
		DidChangeConfiguration:    func(ctx context.Context, params *protocol.DidChangeConfigurationParams) error { return nil },
		DidChangeWorkspaceFolders: func(ctx context.Context, params *protocol.DidChangeWorkspaceFoldersParams) error { return nil },
		ExecuteCommand:            func(ctx context.Context, params *protocol.ExecuteCommandParams) error { return nil },
		WorkDoneProgressCancel:    func(ctx context.Context, params *protocol.WorkDoneProgressCancelParams) error { return nil },
		EndSession:                func(ctx context.Context, uuid uuid.UUID) error { return nil },
	}
}

func allPriorities() map[string]Priority {
	return map[string]Priority{
		protocol.MethodInitialize:                         PriorityHigh,
		protocol.MethodInitialized:                        PriorityHigh,
		protocol.MethodShutdown:                           PriorityHigh,
		protocol.MethodExit:                               PriorityHigh,
		protocol.MethodTextDocumentDidOpen:                PriorityHigh,
		protocol.MethodTextDocumentDidChange:              PriorityHigh,
		protocol.MethodWorkspaceDidChangeWatchedFiles:     PriorityHigh,
		protocol.MethodTextDocumentDidClose:               PriorityHigh,
		protocol.MethodTextDocumentDidSave:                PriorityHigh,
		protocol.MethodWorkspaceDidChangeConfiguration:    PriorityRegular,
		protocol.MethodWorkspaceDidChangeWorkspaceFolders: PriorityRegular,
		protocol.MethodWorkspaceExecuteCommand:            PriorityRegular,
		protocol.MethodWorkDoneProgressCancel:             PriorityAsync,
		MethodEndSession:                                  PriorityHigh,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		priorities map[string]Priority
		methods    *Methods
		nameKey    string
		wantErr    string
	}{
		{
			name:       "valid info",
			priorities: allPriorities(),
			methods:    fullMethods("sample-plugin"),
			nameKey:    "sample-plugin",
		},
		{
			name:    "missing priorities",
			methods: fullMethods("sample-plugin"),
			nameKey: "sample-plugin",
			wantErr: `missing "Priorities" field for this plugin`,
		},
		{
			name:       "missing methods",
			priorities: allPriorities(),
			nameKey:    "sample-plugin",
			wantErr:    `missing "Methods" field for this plugin`,
		},
		{
			name:       "missing name",
			priorities: allPriorities(),
			methods:    fullMethods("sample-plugin"),
			wantErr:    `missing "NameKey" field for this plugin`,
		},
		{
			name:       "mismatched name",
			priorities: allPriorities(),
			methods:    fullMethods("other-plugin"),
			nameKey:    "sample-plugin",
			wantErr:    `missing "Methods.PluginNameKey" field for this plugin`,
		},
		{
			name:       "unrecognized method",
			priorities: map[string]Priority{"textDocument/unknown": PriorityHigh},
			methods:    fullMethods("sample-plugin"),
			nameKey:    "sample-plugin",
			wantErr:    `"textDocument/unknown" included in priority config`,
		},
		{
			name:       "nil method",
			priorities: map[string]Priority{protocol.MethodTextDocumentDidSave: PriorityHigh},
			methods:    &Methods{PluginNameKey: "sample-plugin"},
			nameKey:    "sample-plugin",
			wantErr:    `"textDocument/didSave" is included in the priority configuration, but is nil in Methods`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := PluginInfo{
				Priorities: tt.priorities,
				Methods:    tt.methods,
				NameKey:    tt.nameKey,
			}
			err := info.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

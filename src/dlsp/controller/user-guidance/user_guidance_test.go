package userguidance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	configresolver "github.com/uber/doc-lsp/src/dlsp/controller/config-resolver"
	"github.com/uber/doc-lsp/src/dlsp/controller/config-resolver/configresolvermock"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	"github.com/uber/doc-lsp/src/dlsp/factory"
	"github.com/uber/doc-lsp/src/dlsp/gateway/ide-client/ideclientmock"
	"github.com/uber/doc-lsp/src/dlsp/internal/fs/fsmock"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"github.com/uber/doc-lsp/src/dlsp/repository/session"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name: "comprehensive guidance config",
			config: `
guidance:
  messages:
    - key: preview-hint
      kind: output
      message: run the preview command to open a live preview
      type: info
    - key: missing-project-file
      kind: notification
      when: noProjectFile
      message: no dlsp project file found
      type: warning
      actions:
        - title: docs
          uri: "https://example.com/dlsp"
          external: true
        - title: hide
          save: true
`,
		},
		{
			name: "no messages",
			config: `
guidance:
  messages: []
`,
		},
		{
			name: "erroneous guidance config",
			config: `
guidance: []
`,
			wantErr: "configure guidance",
		},
		{
			name: "unknown condition",
			config: `
guidance:
  messages:
    - key: sometimes
      kind: output
      when: rarely
`,
			wantErr: `unknown condition "rarely"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := config.NewYAML(config.Source(strings.NewReader(tt.config)))
			require.NoError(t, err)

			c, err := New(Params{Config: provider, Logger: zap.NewNop().Sugar()})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				assert.NotNil(t, c)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Nil(t, c)
			}
		})
	}
}

func TestStartupInfo(t *testing.T) {
	c := controller{}
	result, err := c.StartupInfo(context.Background())

	assert.NoError(t, err)
	assert.NoError(t, result.Validate())
	assert.Equal(t, _nameKey, result.NameKey)
}

type mocks struct {
	gateway  *ideclientmock.MockGateway
	fs       *fsmock.MockDlspFS
	resolver *configresolvermock.MockResolver
}

func TestInitialized(t *testing.T) {
	folder := filepath.Join(string(filepath.Separator), "home", "user", "docs")
	projectFiles := func(root string) []string {
		paths := []string{}
		for _, name := range configresolver.ProjectFileNames() {
			paths = append(paths, filepath.Join(root, name))
		}
		return paths
	}
	sentinel := filepath.Join("/cache", _shownMessagesCacheDir)

	tests := []struct {
		name     string
		messages []Message
		setup    func(t *testing.T, m mocks)
		wantErr  []string
	}{
		{
			name: "output message",
			messages: []Message{
				{Key: "preview-hint", Kind: messageKindOutput, Message: "preview hint", Type: "info"},
			},
			setup: func(t *testing.T, m mocks) {
				m.gateway.EXPECT().LogMessage(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, params *protocol.LogMessageParams) error {
					assert.Equal(t, "preview hint", params.Message)
					assert.Equal(t, protocol.MessageTypeInfo, params.Type)
					return nil
				})
				m.fs.EXPECT().UserCacheDir().Return("/cache", nil).AnyTimes()
				m.fs.EXPECT().ReadFile(filepath.Join(sentinel, "preview-hint")).Return(nil, os.ErrNotExist)
				m.fs.EXPECT().MkdirAll(sentinel).Return(nil)
				m.fs.EXPECT().WriteFile(filepath.Join(sentinel, "preview-hint"), "").Return(nil)
			},
		},
		{
			name: "notification message",
			messages: []Message{
				{Key: "notice", Kind: messageKindNotification, Message: "notice", Type: "warning"},
			},
			setup: func(t *testing.T, m mocks) {
				m.gateway.EXPECT().ShowMessage(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, params *protocol.ShowMessageParams) error {
					assert.Equal(t, "notice", params.Message)
					assert.Equal(t, protocol.MessageTypeWarning, params.Type)
					return nil
				})
				m.fs.EXPECT().UserCacheDir().Return("/cache", nil).AnyTimes()
				m.fs.EXPECT().ReadFile(gomock.Any()).Return(nil, os.ErrNotExist)
				m.fs.EXPECT().MkdirAll(gomock.Any()).Return(nil)
				m.fs.EXPECT().WriteFile(gomock.Any(), "").Return(nil)
			},
		},
		{
			name: "already shown",
			messages: []Message{
				{Key: "preview-hint", Kind: messageKindOutput, Message: "preview hint", Type: "info"},
				{Key: "notice", Kind: messageKindNotification, Message: "notice", Type: "info"},
			},
			setup: func(t *testing.T, m mocks) {
				m.fs.EXPECT().UserCacheDir().Return("/cache", nil).Times(2)
				m.fs.EXPECT().ReadFile(gomock.Any()).Return([]byte{}, nil).Times(2)
			},
		},
		{
			name: "action opening a document",
			messages: []Message{
				{
					Key: "docs", Kind: messageKindNotification, Message: "read the docs", Type: "info",
					Actions: []Action{
						{Title: "open", URI: "https://example.com/dlsp", External: true},
						{Title: "hide", Save: true},
					},
				},
			},
			setup: func(t *testing.T, m mocks) {
				m.gateway.EXPECT().ShowMessageRequest(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, params *protocol.ShowMessageRequestParams) (*protocol.MessageActionItem, error) {
					assert.Equal(t, []protocol.MessageActionItem{{Title: "open"}, {Title: "hide"}}, params.Actions)
					return &protocol.MessageActionItem{Title: "open"}, nil
				})
				m.gateway.EXPECT().ShowDocument(gomock.Any(), &protocol.ShowDocumentParams{
					URI:       "https://example.com/dlsp",
					External:  true,
					TakeFocus: true,
				}).Return(&protocol.ShowDocumentResult{Success: true}, nil)
				m.fs.EXPECT().UserCacheDir().Return("/cache", nil)
				m.fs.EXPECT().ReadFile(gomock.Any()).Return(nil, os.ErrNotExist)
			},
		},
		{
			name: "saved action",
			messages: []Message{
				{
					Key: "docs", Kind: messageKindNotification, Message: "read the docs", Type: "info",
					Actions: []Action{{Title: "open", URI: "https://example.com/dlsp"}, {Title: "hide", Save: true}},
				},
			},
			setup: func(t *testing.T, m mocks) {
				m.gateway.EXPECT().ShowMessageRequest(gomock.Any(), gomock.Any()).Return(&protocol.MessageActionItem{Title: "hide"}, nil)
				m.fs.EXPECT().UserCacheDir().Return("/cache", nil).AnyTimes()
				m.fs.EXPECT().ReadFile(gomock.Any()).Return(nil, os.ErrNotExist)
				m.fs.EXPECT().MkdirAll(gomock.Any()).Return(nil)
				m.fs.EXPECT().WriteFile(filepath.Join(sentinel, "docs"), "hide").Return(nil)
			},
		},
		{
			name: "previously saved action is replayed",
			messages: []Message{
				{
					Key: "docs", Kind: messageKindNotification, Message: "read the docs", Type: "info",
					Actions: []Action{{Title: "open", URI: "https://example.com/dlsp"}, {Title: "hide", Save: true}},
				},
			},
			setup: func(t *testing.T, m mocks) {
				m.fs.EXPECT().UserCacheDir().Return("/cache", nil).AnyTimes()
				m.fs.EXPECT().ReadFile(gomock.Any()).Return([]byte("hide"), nil)
				m.fs.EXPECT().MkdirAll(gomock.Any()).Return(nil)
				m.fs.EXPECT().WriteFile(gomock.Any(), "hide").Return(nil)
			},
		},
		{
			name: "dismissed request",
			messages: []Message{
				{Key: "docs", Kind: messageKindNotification, Message: "read the docs", Actions: []Action{{Title: "open", URI: "https://example.com"}}},
			},
			setup: func(t *testing.T, m mocks) {
				m.gateway.EXPECT().ShowMessageRequest(gomock.Any(), gomock.Any()).Return(nil, nil)
				m.fs.EXPECT().UserCacheDir().Return("/cache", nil)
				m.fs.EXPECT().ReadFile(gomock.Any()).Return(nil, os.ErrNotExist)
			},
		},
		{
			name: "cancelled request",
			messages: []Message{
				{Key: "docs", Kind: messageKindNotification, Message: "read the docs", Actions: []Action{{Title: "open", URI: "https://example.com"}}},
			},
			setup: func(t *testing.T, m mocks) {
				m.gateway.EXPECT().ShowMessageRequest(gomock.Any(), gomock.Any()).Return(nil, jsonrpc2.NewError(protocol.CodeRequestCancelled, "cancelled"))
				m.fs.EXPECT().UserCacheDir().Return("/cache", nil)
				m.fs.EXPECT().ReadFile(gomock.Any()).Return(nil, os.ErrNotExist)
			},
		},
		{
			name: "unknown selection",
			messages: []Message{
				{Key: "docs", Kind: messageKindNotification, Message: "read the docs", Actions: []Action{{Title: "open", URI: "https://example.com"}}},
			},
			setup: func(t *testing.T, m mocks) {
				m.gateway.EXPECT().ShowMessageRequest(gomock.Any(), gomock.Any()).Return(&protocol.MessageActionItem{Title: "other"}, nil)
				m.fs.EXPECT().UserCacheDir().Return("/cache", nil)
				m.fs.EXPECT().ReadFile(gomock.Any()).Return(nil, os.ErrNotExist)
			},
			wantErr: []string{"notify message 'docs'", "no action matches selection 'other'"},
		},
		{
			name: "cache dir error",
			messages: []Message{
				{Key: "preview-hint", Kind: messageKindOutput, Message: "preview hint"},
			},
			setup: func(t *testing.T, m mocks) {
				m.fs.EXPECT().UserCacheDir().Return("", errors.New("no home"))
			},
			wantErr: []string{"display applicable messages", "stat shown message"},
		},
		{
			name: "errors from several messages are combined",
			messages: []Message{
				{Key: "a", Kind: messageKindOutput, Message: "a"},
				{Key: "b", Kind: messageKindNotification, Message: "b"},
			},
			setup: func(t *testing.T, m mocks) {
				m.fs.EXPECT().UserCacheDir().Return("/cache", nil).Times(2)
				m.fs.EXPECT().ReadFile(gomock.Any()).Return(nil, os.ErrNotExist).Times(2)
				m.gateway.EXPECT().LogMessage(gomock.Any(), gomock.Any()).Return(errors.New("log failed"))
				m.gateway.EXPECT().ShowMessage(gomock.Any(), gomock.Any()).Return(errors.New("show failed"))
			},
			wantErr: []string{"output message 'a'", "notify message 'b'"},
		},
		{
			name: "project file hint without a project file",
			messages: []Message{
				{Key: "missing", Kind: messageKindOutput, Message: "no project file", When: WhenNoProjectFile},
			},
			setup: func(t *testing.T, m mocks) {
				m.resolver.EXPECT().ProjectFiles(entity.Project{Root: folder}).Return(projectFiles(folder))
				m.fs.EXPECT().FileExists(gomock.Any()).Return(false, nil).Times(len(configresolver.ProjectFileNames()))
				m.fs.EXPECT().UserCacheDir().Return("/cache", nil).AnyTimes()
				m.fs.EXPECT().ReadFile(gomock.Any()).Return(nil, os.ErrNotExist)
				m.gateway.EXPECT().LogMessage(gomock.Any(), gomock.Any()).Return(nil)
				m.fs.EXPECT().MkdirAll(gomock.Any()).Return(nil)
				m.fs.EXPECT().WriteFile(gomock.Any(), "").Return(nil)
			},
		},
		{
			name: "project file hint with a project file",
			messages: []Message{
				{Key: "missing", Kind: messageKindOutput, Message: "no project file", When: WhenNoProjectFile},
			},
			setup: func(t *testing.T, m mocks) {
				files := projectFiles(folder)
				m.resolver.EXPECT().ProjectFiles(entity.Project{Root: folder}).Return(files)
				m.fs.EXPECT().FileExists(files[0]).Return(false, errors.New("permission denied"))
				m.fs.EXPECT().FileExists(files[1]).Return(true, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := mocks{
				gateway:  ideclientmock.NewMockGateway(ctrl),
				fs:       fsmock.NewMockDlspFS(ctrl),
				resolver: configresolvermock.NewMockResolver(ctrl),
			}
			tt.setup(t, m)

			sessions := session.New(tally.NoopScope)
			s := &entity.Session{UUID: factory.UUID(), WorkspaceFolders: []string{folder}}
			require.NoError(t, sessions.Set(context.Background(), s))
			ctx := mapper.SessionUUIDToContext(context.Background(), s.UUID)

			c := &controller{
				sessions:   sessions,
				ideGateway: m.gateway,
				resolver:   m.resolver,
				fs:         m.fs,
				logger:     zap.NewNop().Sugar(),
				guidance:   guidance{Messages: tt.messages},
			}
			err := c.initialized(ctx, &protocol.InitializedParams{})
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			for _, want := range tt.wantErr {
				assert.ErrorContains(t, err, want)
			}
		})
	}
}

func TestInitializedWithoutSession(t *testing.T) {
	c := &controller{sessions: session.New(tally.NoopScope)}
	err := c.initialized(context.Background(), &protocol.InitializedParams{})
	assert.ErrorContains(t, err, "getting session from context")
}

package configresolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	"github.com/uber/doc-lsp/src/dlsp/factory"
	"github.com/uber/doc-lsp/src/dlsp/gateway/ide-client/ideclientmock"
	"github.com/uber/doc-lsp/src/dlsp/internal/fs"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"github.com/uber/doc-lsp/src/dlsp/repository/session/repositorymock"
	"go.lsp.dev/protocol"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func newTestResolver(ctrl *gomock.Controller) (*resolver, *repositorymock.MockRepository, *ideclientmock.MockGateway) {
	sessions := repositorymock.NewMockRepository(ctrl)
	gateway := ideclientmock.NewMockGateway(ctrl)
	r := New(Params{
		Sessions:   sessions,
		IdeGateway: gateway,
		FS:         fs.New(),
		Logger:     zap.NewNop().Sugar(),
		Stats:      tally.NewTestScope("testing", make(map[string]string, 0)),
	}).(*resolver)
	r.cacheDir = "/cache"
	r.lookupEnv = func(string) (string, bool) { return "", false }
	return r, sessions, gateway
}

func configurationCapableSession(folders ...string) *entity.Session {
	return &entity.Session{
		UUID:             factory.UUID(),
		WorkspaceFolders: folders,
		InitializeParams: &protocol.InitializeParams{
			Capabilities: protocol.ClientCapabilities{
				Workspace: &protocol.WorkspaceClientCapabilities{Configuration: true},
			},
		},
	}
}

func TestResolveProject(t *testing.T) {
	ctx := context.Background()

	t.Run("every source", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		r, sessions, gateway := newTestResolver(ctrl)

		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, ".dlsp.yaml"), []byte("buildCommand: [from-file]\nbuildOnSave: false\ncwd: ${projectRoot}/docs\n"), 0644))

		s := configurationCapableSession(root)
		s.InitializationOptions = map[string]any{"dlsp": map[string]any{"buildCommand": []any{"from-startup"}}}
		sessions.EXPECT().GetAllContaining(gomock.Any(), root).Return([]*entity.Session{s}, nil)
		gateway.EXPECT().Configuration(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, params *protocol.ConfigurationParams) ([]interface{}, error) {
				id, err := mapper.ContextToSessionUUID(ctx)
				require.NoError(t, err)
				assert.Equal(t, s.UUID, id)
				require.Len(t, params.Items, 1)
				assert.Equal(t, "dlsp", params.Items[0].Section)
				assert.Equal(t, entity.Project{Root: root}.URI(), params.Items[0].ScopeURI)
				return []interface{}{map[string]interface{}{"buildCommand": []interface{}{"from-service"}, "restartOnCrash": true}}, nil
			})

		cfg, err := r.ResolveProject(ctx, entity.Project{Root: root})
		require.NoError(t, err)
		assert.Equal(t, []string{"from-startup"}, cfg.Strings(entity.OptionBuildCommand))
		assert.Equal(t, entity.SourceStartup, cfg.Source(entity.OptionBuildCommand))
		assert.True(t, cfg.Bool(entity.OptionRestartOnCrash))
		assert.Equal(t, entity.SourceConfigService, cfg.Source(entity.OptionRestartOnCrash))
		assert.False(t, cfg.Bool(entity.OptionBuildOnSave))
		assert.Equal(t, root+"/docs", cfg.String(entity.OptionCwd))
		assert.Equal(t, r.defaultBuildDir(root), cfg.String(entity.OptionBuildDir))
		assert.Contains(t, cfg.String(entity.OptionBuildDir), "/cache/dlsp/")
	})

	t.Run("configuration request fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		r, sessions, gateway := newTestResolver(ctrl)

		s := configurationCapableSession("/docs")
		sessions.EXPECT().GetAllContaining(gomock.Any(), "/docs").Return([]*entity.Session{s}, nil)
		gateway.EXPECT().Configuration(gomock.Any(), gomock.Any()).Return(nil, errors.New("not supported"))

		cfg, err := r.ResolveProject(ctx, entity.Project{Root: "/docs"})
		require.NoError(t, err)
		assert.Equal(t, entity.SourceDefault, cfg.Source(entity.OptionBuildCommand))
	})

	t.Run("editor without configuration support", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		r, sessions, _ := newTestResolver(ctrl)

		s := &entity.Session{UUID: factory.UUID(), InitializationOptions: map[string]any{"dlsp.buildOnChange": false}}
		sessions.EXPECT().GetAllContaining(gomock.Any(), "/docs").Return([]*entity.Session{s}, nil)

		cfg, err := r.ResolveProject(ctx, entity.Project{Root: "/docs"})
		require.NoError(t, err)
		assert.False(t, cfg.Bool(entity.OptionBuildOnChange))
	})

	t.Run("requesting session preferred", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		r, sessions, _ := newTestResolver(ctrl)

		first := &entity.Session{UUID: factory.UUID(), InitializationOptions: map[string]any{"dlsp.cwd": "/first"}}
		second := &entity.Session{UUID: factory.UUID(), InitializationOptions: map[string]any{"dlsp.cwd": "/second"}}
		sessions.EXPECT().GetAllContaining(gomock.Any(), "/docs").Return([]*entity.Session{first, second}, nil).Times(2)

		cfg, err := r.ResolveProject(mapper.SessionUUIDToContext(ctx, second.UUID), entity.Project{Root: "/docs"})
		require.NoError(t, err)
		assert.Equal(t, "/second", cfg.String(entity.OptionCwd))

		cfg, err = r.ResolveProject(ctx, entity.Project{Root: "/docs"})
		require.NoError(t, err)
		assert.Equal(t, "/first", cfg.String(entity.OptionCwd))
	})

	t.Run("malformed project file", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		r, _, _ := newTestResolver(ctrl)

		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, ".dlsp.jsonc"), []byte("{"), 0644))

		_, err := r.ResolveProject(ctx, entity.Project{Root: root})
		assert.Error(t, err)
	})
}

func TestResolveGlobal(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	r, sessions, gateway := newTestResolver(ctrl)

	t.Run("not cached before any editor connects", func(t *testing.T) {
		sessions.EXPECT().GetAll(gomock.Any()).Return(nil, nil)
		cfg, err := r.ResolveGlobal(ctx)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.String(entity.OptionPreviewBind))
		assert.Nil(t, r.global)
	})

	s := configurationCapableSession("/docs")
	sessions.EXPECT().GetAll(gomock.Any()).Return([]*entity.Session{s}, nil).Times(2)
	gateway.EXPECT().Configuration(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, params *protocol.ConfigurationParams) ([]interface{}, error) {
			assert.Empty(t, params.Items[0].ScopeURI)
			return []interface{}{map[string]interface{}{"preview": map[string]interface{}{"httpPort": float64(8080)}}}, nil
		}).Times(2)

	t.Run("cached", func(t *testing.T) {
		cfg, err := r.ResolveGlobal(ctx)
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Int(entity.OptionPreviewHTTPPort))

		cfg, err = r.ResolveGlobal(ctx)
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Int(entity.OptionPreviewHTTPPort))
	})

	t.Run("invalidate", func(t *testing.T) {
		r.Invalidate()
		cfg, err := r.ResolveGlobal(ctx)
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Int(entity.OptionPreviewHTTPPort))
	})
}

func TestProjectFiles(t *testing.T) {
	r := &resolver{}
	assert.Equal(t, []string{
		"/docs/pyproject.toml",
		"/docs/.dlsp.yaml",
		"/docs/.dlsp.jsonc",
	}, r.ProjectFiles(entity.Project{Root: "/docs"}))
}

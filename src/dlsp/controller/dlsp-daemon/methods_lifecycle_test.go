package dlspdaemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	dlspplugin "github.com/uber/doc-lsp/src/dlsp/entity/dlsp-plugin"
	"github.com/uber/doc-lsp/src/dlsp/entity/dlsp-plugin/pluginmock"
	"github.com/uber/doc-lsp/src/dlsp/factory"
	"github.com/uber/doc-lsp/src/dlsp/gateway/ide-client/ideclientmock"
	"github.com/uber/doc-lsp/src/dlsp/internal/mock/fxmock"
	"github.com/uber/doc-lsp/src/dlsp/repository/session/repositorymock"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/fx"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	ctrl := gomock.NewController(t)

	t.Run("initialize success", func(t *testing.T) {
		s := &entity.Session{UUID: factory.UUID()}
		ctx := context.WithValue(context.Background(), entity.SessionContextKey, s.UUID)

		sessionRepository := repositorymock.NewMockRepository(ctrl)
		sessionRepository.EXPECT().GetFromContext(gomock.Any()).Return(s, nil).AnyTimes()
		sessionRepository.EXPECT().Set(gomock.Any(), s).Return(nil)

		core, recorded := observer.New(zap.ErrorLevel)

		samplePlugin1 := pluginmock.NewMockPlugin(ctrl)
		samplePlugin1.EXPECT().StartupInfo(gomock.Any()).Return(dlspplugin.PluginInfo{
			Priorities: map[string]dlspplugin.Priority{
				protocol.MethodInitialize: dlspplugin.PriorityHigh,
			},
			Methods: &dlspplugin.Methods{
				PluginNameKey: "sample1",
				Initialize: func(ctx context.Context, params *protocol.InitializeParams, result *protocol.InitializeResult) error {
					result.ServerInfo.Version = "1.0.0"
					return nil
				},
			},
			NameKey: "sample1",
		}, nil)

		samplePlugin2 := pluginmock.NewMockPlugin(ctrl)
		samplePlugin2.EXPECT().StartupInfo(gomock.Any()).Return(dlspplugin.PluginInfo{
			Priorities: map[string]dlspplugin.Priority{
				protocol.MethodInitialize: dlspplugin.PriorityHigh,
			},
			Methods: &dlspplugin.Methods{
				PluginNameKey: "sample2",
				Initialize: func(ctx context.Context, params *protocol.InitializeParams, result *protocol.InitializeResult) error {
					return errors.New("sample")
				},
			},
			NameKey: "sample2",
		}, nil)

		c := controller{
			logger:        zap.New(core).Sugar(),
			sessions:      sessionRepository,
			stats:         tally.NewTestScope("testing", nil),
			pluginsAll:    []dlspplugin.Plugin{samplePlugin1, samplePlugin2},
			pluginConfig:  map[string]bool{"sample1": true, "sample2": true},
			pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{},
		}

		params := &protocol.InitializeParams{
			WorkspaceFolders: []protocol.WorkspaceFolder{
				{URI: "file:///foo/bar", Name: "bar"},
			},
			InitializationOptions: map[string]any{
				"dlsp": map[string]any{"buildDir": "_out"},
			},
		}
		res, err := c.Initialize(ctx, params)
		c.wg.Wait()
		require.NoError(t, err, "Unexpected initialize error.")

		assert.Equal(t, "dlsp", res.ServerInfo.Name)
		assert.Equal(t, "1.0.0", res.ServerInfo.Version)
		assert.Equal(t, protocol.TextDocumentSyncOptions{
			OpenClose: true,
			Change:    protocol.TextDocumentSyncKindIncremental,
			Save: &protocol.SaveOptions{
				IncludeText: true,
			},
		}, res.Capabilities.TextDocumentSync)
		assert.Equal(t, []string{CommandRestart, CommandPreview, CommandClients}, res.Capabilities.ExecuteCommandProvider.Commands)
		assert.True(t, res.Capabilities.Workspace.WorkspaceFolders.Supported)
		assert.Equal(t, 1, recorded.Len())

		assert.True(t, s.Enabled)
		assert.Equal(t, []string{"/foo/bar"}, s.WorkspaceFolders)
		assert.Equal(t, params, s.InitializeParams)
		assert.Equal(t, map[string]any{"dlsp": map[string]any{"buildDir": "_out"}}, s.InitializationOptions)
		assert.Contains(t, c.pluginMethods, s.UUID)
	})

	t.Run("root uri fallback", func(t *testing.T) {
		s := &entity.Session{UUID: factory.UUID()}
		ctx := context.WithValue(context.Background(), entity.SessionContextKey, s.UUID)

		sessionRepository := repositorymock.NewMockRepository(ctrl)
		sessionRepository.EXPECT().GetFromContext(gomock.Any()).Return(s, nil).AnyTimes()
		sessionRepository.EXPECT().Set(gomock.Any(), s).Return(nil)

		c := controller{
			logger:        zap.NewNop().Sugar(),
			sessions:      sessionRepository,
			pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{},
		}
		_, err := c.Initialize(ctx, &protocol.InitializeParams{RootURI: "file:///foo"})
		require.NoError(t, err)
		assert.Equal(t, []string{"/foo"}, s.WorkspaceFolders)
		assert.True(t, s.Enabled)
	})

	t.Run("no workspace folder", func(t *testing.T) {
		s := &entity.Session{UUID: factory.UUID(), Enabled: true}
		ctx := context.WithValue(context.Background(), entity.SessionContextKey, s.UUID)

		sessionRepository := repositorymock.NewMockRepository(ctrl)
		sessionRepository.EXPECT().GetFromContext(gomock.Any()).Return(s, nil)
		sessionRepository.EXPECT().Set(gomock.Any(), gomock.Any()).Do(func(ctx context.Context, s *entity.Session) {
			assert.False(t, s.Enabled)
		}).Return(nil)

		// Plugins are not consulted for a disabled session.
		plugin := pluginmock.NewMockPlugin(ctrl)
		c := controller{
			logger:        zap.NewNop().Sugar(),
			sessions:      sessionRepository,
			pluginsAll:    []dlspplugin.Plugin{plugin},
			pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{},
		}

		result, err := c.Initialize(ctx, &protocol.InitializeParams{})
		require.NoError(t, err)
		assert.Equal(t, protocol.ServerCapabilities{}, result.Capabilities)
		assert.NotContains(t, c.pluginMethods, s.UUID)
	})

	t.Run("missing session uuid in context", func(t *testing.T) {
		sessionRepository := repositorymock.NewMockRepository(ctrl)
		sessionRepository.EXPECT().GetFromContext(gomock.Any()).Return(nil, errors.New("sample"))
		c := controller{
			sessions: sessionRepository,
		}

		_, err := c.Initialize(context.Background(), &protocol.InitializeParams{})
		assert.Error(t, err)
	})

	t.Run("session update failure", func(t *testing.T) {
		s := &entity.Session{UUID: factory.UUID()}
		ctx := context.WithValue(context.Background(), entity.SessionContextKey, s.UUID)

		sessionRepository := repositorymock.NewMockRepository(ctrl)
		sessionRepository.EXPECT().GetFromContext(gomock.Any()).Return(s, nil)
		sessionRepository.EXPECT().Set(gomock.Any(), gomock.Any()).Return(errors.New("sample"))
		c := controller{
			logger:   zap.NewNop().Sugar(),
			sessions: sessionRepository,
		}

		_, err := c.Initialize(ctx, &protocol.InitializeParams{})
		assert.ErrorContains(t, err, "setting updated session state")
	})
}

func TestInitialized(t *testing.T) {
	ctrl := gomock.NewController(t)
	sEnabled := &entity.Session{
		UUID:    factory.UUID(),
		Enabled: true,
	}
	ctx := context.WithValue(context.Background(), entity.SessionContextKey, sEnabled.UUID)

	pluginMethods := map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{sEnabled.UUID: {}}
	pluginMethods[sEnabled.UUID][protocol.MethodInitialized] = dlspplugin.MethodLists{
		Sync: []*dlspplugin.Methods{
			{
				Initialized: func(ctx context.Context, params *protocol.InitializedParams) error {
					return nil
				},
			},
			{
				Initialized: func(ctx context.Context, params *protocol.InitializedParams) error {
					return errors.New("sample")
				},
			},
		},
		Async: []*dlspplugin.Methods{
			{
				Initialized: func(ctx context.Context, params *protocol.InitializedParams) error {
					return errors.New("sample")
				},
			},
		},
	}

	t.Run("enabled session", func(t *testing.T) {
		sessionRepository := repositorymock.NewMockRepository(ctrl)
		sessionRepository.EXPECT().GetFromContext(gomock.Any()).Return(sEnabled, nil)
		mockIdeGateway := ideclientmock.NewMockGateway(ctrl)
		mockIdeGateway.EXPECT().ShowMessage(gomock.Any(), gomock.Any()).Do(func(ctx context.Context, params *protocol.ShowMessageParams) {
			assert.Equal(t, protocol.MessageTypeInfo, params.Type)
		}).Return(nil)

		core, recorded := observer.New(zap.ErrorLevel)
		c := controller{
			logger:        zap.New(core).Sugar(),
			sessions:      sessionRepository,
			ideGateway:    mockIdeGateway,
			stats:         tally.NewTestScope("testing", nil),
			pluginMethods: pluginMethods,
		}

		err := c.Initialized(ctx, &protocol.InitializedParams{})
		c.wg.Wait()
		assert.NoError(t, err)
		assert.Equal(t, 2, recorded.Len())
	})

	t.Run("disabled session", func(t *testing.T) {
		sDisabled := &entity.Session{UUID: factory.UUID()}
		ctx := context.WithValue(context.Background(), entity.SessionContextKey, sDisabled.UUID)
		sessionRepository := repositorymock.NewMockRepository(ctrl)
		sessionRepository.EXPECT().GetFromContext(gomock.Any()).Return(sDisabled, nil)
		mockIdeGateway := ideclientmock.NewMockGateway(ctrl)
		mockIdeGateway.EXPECT().ShowMessage(gomock.Any(), gomock.Any()).Do(func(ctx context.Context, params *protocol.ShowMessageParams) {
			assert.Equal(t, protocol.MessageTypeWarning, params.Type)
		}).Return(errors.New("closed"))

		core, recorded := observer.New(zap.WarnLevel)
		c := controller{
			logger:        zap.New(core).Sugar(),
			sessions:      sessionRepository,
			ideGateway:    mockIdeGateway,
			pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{},
		}

		assert.NoError(t, c.Initialized(ctx, &protocol.InitializedParams{}))
		assert.Equal(t, 1, recorded.FilterMessage("showing initialized message").Len())
	})

	t.Run("missing session", func(t *testing.T) {
		c := controller{pluginMethods: pluginMethods}
		assert.Error(t, c.Initialized(context.Background(), &protocol.InitializedParams{}))
	})
}

func TestShutdown(t *testing.T) {
	s := &entity.Session{UUID: factory.UUID()}
	ctx := context.WithValue(context.Background(), entity.SessionContextKey, s.UUID)

	core, recorded := observer.New(zap.ErrorLevel)
	c := controller{
		logger: zap.New(core).Sugar(),
		stats:  tally.NewTestScope("testing", nil),
		pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{
			s.UUID: {
				protocol.MethodShutdown: dlspplugin.MethodLists{
					Sync: []*dlspplugin.Methods{{
						PluginNameKey: "sample",
						Shutdown: func(ctx context.Context) error {
							return errors.New("sample")
						},
					}},
				},
			},
		},
	}

	assert.NoError(t, c.Shutdown(ctx))
	assert.Equal(t, 1, recorded.Len())
	assert.Error(t, c.Shutdown(context.Background()))
}

func TestExit(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := &entity.Session{UUID: factory.UUID()}
	ctx := context.WithValue(context.Background(), entity.SessionContextKey, s.UUID)

	t.Run("ends the session", func(t *testing.T) {
		var exited, ended bool
		sessionRepository := repositorymock.NewMockRepository(ctrl)
		sessionRepository.EXPECT().GetFromContext(gomock.Any()).Return(s, nil)
		sessionRepository.EXPECT().Delete(gomock.Any(), s.UUID).Return(nil)
		mockIdeGateway := ideclientmock.NewMockGateway(ctrl)
		mockIdeGateway.EXPECT().DeregisterClient(gomock.Any(), s.UUID).Return(nil)

		c := controller{
			logger:     zap.NewNop().Sugar(),
			sessions:   sessionRepository,
			ideGateway: mockIdeGateway,
			stats:      tally.NewTestScope("testing", nil),
			pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{
				s.UUID: {
					protocol.MethodExit: dlspplugin.MethodLists{
						Sync: []*dlspplugin.Methods{{
							Exit: func(ctx context.Context) error {
								exited = true
								return nil
							},
						}},
					},
					dlspplugin.MethodEndSession: dlspplugin.MethodLists{
						Sync: []*dlspplugin.Methods{{
							EndSession: func(ctx context.Context, id uuid.UUID) error {
								ended = id == s.UUID
								return nil
							},
						}},
					},
				},
			},
		}

		assert.NoError(t, c.Exit(ctx))
		assert.True(t, exited)
		assert.True(t, ended)
		assert.NotContains(t, c.pluginMethods, s.UUID)
	})

	t.Run("full shutdown without idle timer", func(t *testing.T) {
		mockShutdowner := fxmock.NewMockShutdowner(ctrl)
		mockShutdowner.EXPECT().Shutdown().Return(nil)

		c := controller{
			logger:        zap.NewNop().Sugar(),
			shutdowner:    mockShutdowner,
			pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{},
		}
		require.NoError(t, c.RequestFullShutdown(ctx))
		assert.NoError(t, c.Exit(ctx))
	})

	t.Run("missing session", func(t *testing.T) {
		sessionRepository := repositorymock.NewMockRepository(ctrl)
		sessionRepository.EXPECT().GetFromContext(gomock.Any()).Return(nil, errors.New("sample"))
		c := controller{
			logger:        zap.NewNop().Sugar(),
			sessions:      sessionRepository,
			pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{},
		}
		assert.Error(t, c.Exit(ctx))
	})
}

func TestInitSession(t *testing.T) {
	ctrl := gomock.NewController(t)

	t.Run("success", func(t *testing.T) {
		stats := tally.NewTestScope("testing", nil)
		sessionRepository := repositorymock.NewMockRepository(ctrl)
		mockIdeGateway := ideclientmock.NewMockGateway(ctrl)

		var registered uuid.UUID
		mockIdeGateway.EXPECT().RegisterClient(gomock.Any(), gomock.Any(), nil).Do(func(ctx context.Context, id uuid.UUID, _ *jsonrpc2.Conn) {
			registered = id
		}).Return(nil)
		sessionRepository.EXPECT().Set(gomock.Any(), gomock.Any()).Do(func(ctx context.Context, s *entity.Session) {
			assert.Equal(t, registered, s.UUID)
			assert.True(t, s.Enabled)
		}).Return(nil)

		c := controller{
			logger:     zap.NewNop().Sugar(),
			sessions:   sessionRepository,
			ideGateway: mockIdeGateway,
			stats:      stats.SubScope("daemon"),
		}
		id, err := c.InitSession(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, registered, id)
		assert.Equal(t, int64(1), stats.Snapshot().Counters()["testing.daemon.sessions_started+"].Value())
	})

	t.Run("register failure", func(t *testing.T) {
		mockIdeGateway := ideclientmock.NewMockGateway(ctrl)
		mockIdeGateway.EXPECT().RegisterClient(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("sample"))

		c := controller{
			logger:     zap.NewNop().Sugar(),
			ideGateway: mockIdeGateway,
		}
		id, err := c.InitSession(context.Background(), nil)
		assert.Error(t, err)
		assert.Equal(t, uuid.Nil, id)
	})
}

func TestEndSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	id := factory.UUID()

	t.Run("session without plugins", func(t *testing.T) {
		sessionRepository := repositorymock.NewMockRepository(ctrl)
		sessionRepository.EXPECT().Delete(gomock.Any(), id).Return(nil)
		mockIdeGateway := ideclientmock.NewMockGateway(ctrl)
		mockIdeGateway.EXPECT().DeregisterClient(gomock.Any(), id).Return(errors.New("not registered"))

		core, recorded := observer.New(zap.ErrorLevel)
		c := controller{
			logger:        zap.New(core).Sugar(),
			sessions:      sessionRepository,
			ideGateway:    mockIdeGateway,
			pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{},
		}
		assert.NoError(t, c.EndSession(context.Background(), id))
		assert.Equal(t, 1, recorded.Len())
	})

	t.Run("async end session plugins", func(t *testing.T) {
		sessionRepository := repositorymock.NewMockRepository(ctrl)
		sessionRepository.EXPECT().Delete(gomock.Any(), id).Return(nil)
		mockIdeGateway := ideclientmock.NewMockGateway(ctrl)
		mockIdeGateway.EXPECT().DeregisterClient(gomock.Any(), id).Return(nil)

		ended := make(chan uuid.UUID, 1)
		c := controller{
			logger:     zap.NewNop().Sugar(),
			sessions:   sessionRepository,
			ideGateway: mockIdeGateway,
			stats:      tally.NewTestScope("testing", nil),
			pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{
				id: {
					dlspplugin.MethodEndSession: dlspplugin.MethodLists{
						Async: []*dlspplugin.Methods{{
							EndSession: func(ctx context.Context, id uuid.UUID) error {
								ended <- id
								return nil
							},
						}},
					},
				},
			},
		}
		// The connection context carries no session once the connection is gone.
		assert.NoError(t, c.EndSession(context.Background(), id))
		c.wg.Wait()
		assert.Equal(t, id, <-ended)
	})
}

func TestRefreshIdleTimer(t *testing.T) {
	ctrl := gomock.NewController(t)

	t.Run("disabled", func(t *testing.T) {
		c := controller{}
		assert.NoError(t, c.refreshIdleTimer(context.Background()))
		assert.Nil(t, c.idleTimer)
	})

	t.Run("expires without sessions", func(t *testing.T) {
		done := make(chan struct{})
		mockShutdowner := fxmock.NewMockShutdowner(ctrl)
		mockShutdowner.EXPECT().Shutdown().DoAndReturn(func(...fx.ShutdownOption) error {
			close(done)
			return nil
		})
		sessionRepository := repositorymock.NewMockRepository(ctrl)
		sessionRepository.EXPECT().SessionCount(gomock.Any()).Return(0, nil)

		c := controller{
			logger:      zap.NewNop().Sugar(),
			sessions:    sessionRepository,
			shutdowner:  mockShutdowner,
			idleTimeout: 10 * time.Millisecond,
			stopped:     make(chan struct{}),
		}
		require.NoError(t, c.refreshIdleTimer(context.Background()))
		require.NoError(t, c.refreshIdleTimer(context.Background()))
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("idle timer did not expire")
		}
		c.stop()
	})

	t.Run("held by active sessions", func(t *testing.T) {
		sessionRepository := repositorymock.NewMockRepository(ctrl)
		sessionRepository.EXPECT().SessionCount(gomock.Any()).Return(1, nil)

		c := controller{
			logger:      zap.NewNop().Sugar(),
			sessions:    sessionRepository,
			shutdowner:  fxmock.NewMockShutdowner(ctrl),
			idleTimeout: 100 * time.Millisecond,
			stopped:     make(chan struct{}),
		}
		require.NoError(t, c.refreshIdleTimer(context.Background()))
		require.NoError(t, c.refreshIdleTimer(context.Background()))
		time.Sleep(200 * time.Millisecond)
		c.stop()
		c.stop()
	})

	t.Run("session count failure", func(t *testing.T) {
		sessionRepository := repositorymock.NewMockRepository(ctrl)
		sessionRepository.EXPECT().SessionCount(gomock.Any()).Return(0, errors.New("sample"))

		c := controller{
			logger:      zap.NewNop().Sugar(),
			sessions:    sessionRepository,
			idleTimeout: time.Hour,
			stopped:     make(chan struct{}),
		}
		require.NoError(t, c.refreshIdleTimer(context.Background()))
		assert.Error(t, c.refreshIdleTimer(context.Background()))
		c.stop()
	})
}

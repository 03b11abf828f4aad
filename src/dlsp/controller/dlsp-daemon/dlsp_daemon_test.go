package dlspdaemon

import (
	"context"
	"errors"
	"sync/atomic"
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
	"github.com/uber/doc-lsp/src/dlsp/internal/mock/fxmock"
	"github.com/uber/doc-lsp/src/dlsp/repository/session/repositorymock"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type sampleConfig map[string]interface{}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNew(t *testing.T) {
	s := &entity.Session{
		UUID: factory.UUID(),
	}
	ctx := context.WithValue(context.Background(), entity.SessionContextKey, s.UUID)

	newParams := func(t *testing.T, cfg sampleConfig) (Params, *fxmock.MockShutdowner, *fxtest.Lifecycle) {
		ctrl := gomock.NewController(t)
		mockShutdowner := fxmock.NewMockShutdowner(ctrl)
		mockConfig, err := config.NewStaticProvider(cfg)
		require.NoError(t, err)
		lc := fxtest.NewLifecycle(t)
		return Params{
			Shutdowner: mockShutdowner,
			Lifecycle:  lc,
			Logger:     zap.NewNop().Sugar(),
			Sessions:   repositorymock.NewMockRepository(ctrl),
			Config:     mockConfig,
			Stats:      tally.NewTestScope("testing", nil),
		}, mockShutdowner, lc
	}

	t.Run("idle timer disabled", func(t *testing.T) {
		p, mockShutdowner, lc := newParams(t, sampleConfig{
			_idleTimeoutMinutesKey: 0,
			_pluginsKey:            map[string]bool{},
		})
		mockShutdowner.EXPECT().Shutdown().Return(nil)

		c, err := New(p)
		require.NoError(t, err)
		lc.RequireStart()
		assert.Nil(t, c.(*controller).idleTimer)

		require.NoError(t, c.RequestFullShutdown(ctx))
		assert.NoError(t, c.Exit(ctx))
		lc.RequireStop()
	})

	t.Run("full shutdown through idle timer", func(t *testing.T) {
		p, mockShutdowner, lc := newParams(t, sampleConfig{
			_idleTimeoutMinutesKey: 5,
			_pluginsKey:            map[string]bool{},
		})
		done := make(chan struct{})
		mockShutdowner.EXPECT().Shutdown().DoAndReturn(func(...fx.ShutdownOption) error {
			close(done)
			return nil
		})

		c, err := New(p)
		require.NoError(t, err)
		lc.RequireStart()

		require.NoError(t, c.RequestFullShutdown(ctx))
		assert.NoError(t, c.Exit(ctx))
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("shutdown was not requested")
		}
		lc.RequireStop()
	})

	t.Run("negative timeout", func(t *testing.T) {
		p, _, _ := newParams(t, sampleConfig{
			_idleTimeoutMinutesKey: -1,
		})
		_, err := New(p)
		assert.ErrorContains(t, err, "invalid")
	})

	t.Run("invalid plugin config", func(t *testing.T) {
		p, _, _ := newParams(t, sampleConfig{
			_idleTimeoutMinutesKey: 0,
			_pluginsKey:            "docSync",
		})
		_, err := New(p)
		assert.ErrorContains(t, err, "plugin keys")
	})
}

func TestRegisterPlugins(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := &entity.Session{
		UUID: factory.UUID(),
	}
	ctx := context.WithValue(context.Background(), entity.SessionContextKey, s.UUID)

	sessionRepository := repositorymock.NewMockRepository(ctrl)
	sessionRepository.EXPECT().GetFromContext(gomock.Any()).Return(s, nil).AnyTimes()

	t.Run("enabled and disabled plugins", func(t *testing.T) {
		enabled := pluginmock.NewMockPlugin(ctrl)
		enabled.EXPECT().StartupInfo(gomock.Any()).Return(factory.PluginInfoValid(1), nil)
		disabled := pluginmock.NewMockPlugin(ctrl)
		disabled.EXPECT().StartupInfo(gomock.Any()).Return(factory.PluginInfoValid(2), nil)

		c := controller{
			logger:        zap.NewNop().Sugar(),
			sessions:      sessionRepository,
			pluginsAll:    []dlspplugin.Plugin{enabled, nil, disabled},
			pluginConfig:  map[string]bool{"test-plugin-1": true, "test-plugin-2": false},
			pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{},
		}

		require.NoError(t, c.registerSessionPlugins(ctx))
		lists := c.pluginMethods[s.UUID][protocol.MethodTextDocumentDidOpen]
		require.Len(t, lists.Sync, 1)
		assert.Equal(t, "test-plugin-1", lists.Sync[0].PluginNameKey)
		assert.Empty(t, lists.Async)
	})

	t.Run("startup info error", func(t *testing.T) {
		failing := pluginmock.NewMockPlugin(ctrl)
		failing.EXPECT().StartupInfo(gomock.Any()).Return(dlspplugin.PluginInfo{}, errors.New("sample"))

		c := controller{
			logger:        zap.NewNop().Sugar(),
			sessions:      sessionRepository,
			pluginsAll:    []dlspplugin.Plugin{failing},
			pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{},
		}
		assert.Error(t, c.registerSessionPlugins(ctx))
	})

	t.Run("invalid plugin info", func(t *testing.T) {
		invalid := pluginmock.NewMockPlugin(ctrl)
		invalid.EXPECT().StartupInfo(gomock.Any()).Return(factory.PluginInfoInvalid(1), nil)

		c := controller{
			logger:        zap.NewNop().Sugar(),
			sessions:      sessionRepository,
			pluginsAll:    []dlspplugin.Plugin{invalid},
			pluginConfig:  map[string]bool{"test-plugin-1": true},
			pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{},
		}
		assert.ErrorContains(t, c.registerSessionPlugins(ctx), "prioritizing plugin methods")
		assert.NotContains(t, c.pluginMethods, s.UUID)
	})

	t.Run("missing session", func(t *testing.T) {
		missing := repositorymock.NewMockRepository(ctrl)
		missing.EXPECT().GetFromContext(gomock.Any()).Return(nil, errors.New("sample"))
		c := controller{sessions: missing}
		assert.Error(t, c.registerSessionPlugins(context.Background()))
	})
}

func TestExecutePluginMethods(t *testing.T) {
	id := factory.UUID()
	ctx := context.WithValue(context.Background(), entity.SessionContextKey, id)
	stats := tally.NewTestScope("testing", nil)

	var syncCalls, asyncCalls atomic.Int32
	var asyncSession atomic.Value
	m := &dlspplugin.Methods{PluginNameKey: "sample"}
	c := controller{
		logger: zap.NewNop().Sugar(),
		stats:  stats.SubScope("daemon"),
		pluginMethods: map[uuid.UUID]dlspplugin.RuntimePrioritizedMethods{
			id: {
				protocol.MethodTextDocumentDidSave: dlspplugin.MethodLists{
					Sync:  []*dlspplugin.Methods{m, m},
					Async: []*dlspplugin.Methods{m},
				},
			},
		},
	}
	handlerSync := func(ctx context.Context, m *dlspplugin.Methods) {
		syncCalls.Add(1)
	}
	handlerAsync := func(ctx context.Context, m *dlspplugin.Methods) {
		asyncCalls.Add(1)
		s, _ := ctx.Value(entity.SessionContextKey).(uuid.UUID)
		asyncSession.Store(s)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
	}

	t.Run("sync then async", func(t *testing.T) {
		require.NoError(t, c.executePluginMethods(ctx, protocol.MethodTextDocumentDidSave, handlerSync, handlerAsync))
		c.wg.Wait()
		assert.Equal(t, int32(2), syncCalls.Load())
		assert.Equal(t, int32(1), asyncCalls.Load())
		assert.Equal(t, id, asyncSession.Load())
		assert.Equal(t, int64(1), stats.Snapshot().Counters()["testing.daemon.plugin_calls+method=textDocument/didSave"].Value())
	})

	t.Run("method without plugins", func(t *testing.T) {
		require.NoError(t, c.executePluginMethods(ctx, protocol.MethodTextDocumentDidOpen, handlerSync, handlerAsync))
		c.wg.Wait()
		assert.Equal(t, int32(2), syncCalls.Load())
	})

	t.Run("nil handler", func(t *testing.T) {
		assert.Error(t, c.executePluginMethods(ctx, protocol.MethodTextDocumentDidSave, nil, handlerAsync))
	})

	t.Run("missing session", func(t *testing.T) {
		assert.Error(t, c.executePluginMethods(context.Background(), protocol.MethodTextDocumentDidSave, handlerSync, handlerAsync))
	})
}

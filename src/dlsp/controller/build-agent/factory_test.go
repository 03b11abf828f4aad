package buildagent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	"github.com/uber/doc-lsp/src/dlsp/internal/executor/executormock"
	"github.com/uber/doc-lsp/src/dlsp/internal/fs"
	"github.com/uber/doc-lsp/src/dlsp/internal/serverinfofile/serverinfofilemock"
	"go.uber.org/config"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func TestNewFactory(t *testing.T) {
	ctrl := gomock.NewController(t)
	params := func(cfg map[string]any) Params {
		provider, err := config.NewStaticProvider(cfg)
		require.NoError(t, err)
		return Params{
			Config:         provider,
			Executor:       executormock.NewMockExecutor(ctrl),
			FS:             fs.New(),
			ServerInfoFile: serverinfofilemock.NewMockServerInfoFile(ctrl),
			Logger:         zap.NewNop().Sugar(),
			Stats:          tally.NewTestScope("testing", make(map[string]string, 0)),
		}
	}

	t.Run("configured timeouts", func(t *testing.T) {
		f, err := NewFactory(params(map[string]any{
			"buildAgent": map[string]any{
				"startupTimeoutSeconds":  60,
				"shutdownTimeoutSeconds": 2,
			},
		}))
		require.NoError(t, err)
		assert.Equal(t, 60*time.Second, f.(*agentFactory).startupTimeout)
		assert.Equal(t, 2*time.Second, f.(*agentFactory).shutdownTimeout)
	})

	t.Run("defaults", func(t *testing.T) {
		f, err := NewFactory(params(map[string]any{}))
		require.NoError(t, err)
		assert.Equal(t, _defaultStartupTimeout, f.(*agentFactory).startupTimeout)
		assert.Equal(t, _defaultShutdownTimeout, f.(*agentFactory).shutdownTimeout)
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := NewFactory(params(map[string]any{
			"buildAgent": map[string]any{"startupTimeoutSeconds": "soon"},
		}))
		assert.ErrorContains(t, err, _configKeyStartupTimeout)
	})
}

func TestFactoryNew(t *testing.T) {
	spawner := &agentSpawner{}
	f := NewFactoryWithSpawner(spawner, _eventually, time.Second, zap.NewNop().Sugar(), tally.NoopScope)

	listener := &recordingListener{}
	project := entity.Project{Root: "/home/user/docs"}
	a, err := f.New(project, sampleConfig(), listener, nil)
	require.NoError(t, err)
	b, err := f.New(project, sampleConfig(), listener, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, project, a.Project())
	assert.Equal(t, entity.ClientStarting, a.State())

	startReady(t, a)
	require.NoError(t, a.Destroy(context.Background()))
	require.NoError(t, b.Destroy(context.Background()))
}

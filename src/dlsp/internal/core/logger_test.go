package core

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name          string
		loggingConfig string
		expectError   bool
	}{
		{
			name: "info level json encoding",
			loggingConfig: `
logging:
  level: info
  development: false
  encoding: json
  outputPaths:
    - stderr
`,
		},
		{
			name: "debug level console encoding",
			loggingConfig: `
logging:
  level: debug
  development: true
  encoding: console
`,
		},
		{
			name: "invalid level",
			loggingConfig: `
logging:
  level: invalid
  encoding: json
`,
			expectError: true,
		},
		{
			name: "unopenable output",
			loggingConfig: `
logging:
  level: info
  outputPaths:
    - /nonexistent-dir/for/sure/dlsp.log
`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := config.NewYAML(config.Source(strings.NewReader(tt.loggingConfig)))
			require.NoError(t, err)

			sugared, err := NewSugaredLogger(provider)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			logger := NewLogger(sugared)
			require.NotNil(t, logger)
			logger.Info("test message")
		})
	}
}

func TestLoggerWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "dlsp.log")
	provider, err := config.NewStaticProvider(map[string]interface{}{
		"logging": map[string]interface{}{
			"level":       "debug",
			"encoding":    "json",
			"outputPaths": []string{logPath},
		},
	})
	require.NoError(t, err)

	logger, err := NewSugaredLogger(provider)
	require.NoError(t, err)
	logger.Infow("structured message", "key1", "value1")
	require.NoError(t, logger.Sync())

	assert.FileExists(t, logPath)
}

package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMkdirAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs", "agents")
	require.NoError(t, New().MkdirAll(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "conf.py")
	require.NoError(t, os.WriteFile(conf, nil, 0o644))

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "regular file", path: conf, want: true},
		{name: "missing", path: filepath.Join(dir, "missing")},
		{name: "directory", path: dir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().FileExists(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadWriteRemove(t *testing.T) {
	fs := New()
	name := filepath.Join(t.TempDir(), "server-info.json")

	require.NoError(t, fs.WriteFile(name, `{"service-name":"dlsp-daemon"}`))
	data, err := fs.ReadFile(name)
	require.NoError(t, err)
	assert.JSONEq(t, `{"service-name":"dlsp-daemon"}`, string(data))

	require.NoError(t, fs.Remove(name))
	_, err = fs.ReadFile(name)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Error(t, fs.Remove(name))
}

func TestTempFile(t *testing.T) {
	dir := t.TempDir()
	f, err := New().TempFile(dir, "agent-*.log")
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, dir, filepath.Dir(f.Name()))
	assert.Contains(t, filepath.Base(f.Name()), "agent-")
}

func TestUserCacheDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/cache")
	dir, err := New().UserCacheDir()
	if err != nil {
		t.Skip("no cache dir on this platform")
	}
	assert.NotEmpty(t, dir)
}

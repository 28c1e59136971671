// pkg/paths/paths_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: Environment variables only
// PURPOSE: Test XDG resolution, env overrides and internal layout

package paths_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/riceify/pkg/paths"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EnvOverrides(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(paths.EnvDataDir, filepath.Join(tempDir, "data"))
	t.Setenv(paths.EnvConfigDir, filepath.Join(tempDir, "config"))
	t.Setenv(paths.EnvCacheDir, filepath.Join(tempDir, "cache"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(tempDir, "state"))

	p, err := paths.New()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(tempDir, "data"), p.DataDir())
	assert.Equal(t, filepath.Join(tempDir, "config"), p.ConfigDir())
	assert.Equal(t, filepath.Join(tempDir, "cache"), p.CacheDir())
	assert.Equal(t, filepath.Join(tempDir, "state", "riceify"), p.StateDir())
	assert.Equal(t, filepath.Join(tempDir, "config", "riceify.toml"), p.ConfigFilePath())
	assert.Equal(t, filepath.Join(tempDir, "cache", "hashes.jsonl"), p.HashCachePath())
}

func TestNewWithRoot_Layout(t *testing.T) {
	p := paths.NewWithRoot("/r")

	assert.Equal(t, "/r/data/profiles", p.ProfilesDir())
	assert.Equal(t, "/r/data/objects", p.ObjectsDir())
	assert.Equal(t, "/r/data/backups", p.BackupsDir())
	assert.Equal(t, "/r/data/staging", p.StagingDir())
	assert.Equal(t, "/r/cache/hashes.jsonl", p.HashCachePath())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/.config/kitty", filepath.Join(home, ".config/kitty")},
		{"~other/x", "~other/x"},
		{"/abs/path", "/abs/path"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, paths.ExpandHome(tt.in))
		})
	}
}

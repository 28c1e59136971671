// pkg/config/config_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: Real filesystem under t.TempDir(), environment variables
// PURPOSE: Test koanf layering, validation and profile resolution

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/riceify/pkg/config"
	"github.com/arthur-debert/riceify/pkg/errors"
	"github.com/arthur-debert/riceify/pkg/filesystem"
	"github.com/arthur-debert/riceify/pkg/testutil"
	"github.com/arthur-debert/riceify/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "riceify.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, "xxh3", cfg.Cache.Hash)
	assert.Equal(t, int64(8<<20), cfg.Cache.ContentBytes)
	assert.Empty(t, cfg.Profiles)
}

func TestLoad_FileAndEnvLayering(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "")
	path := writeConfig(t, `
workers = 2

[cache]
hash = "sha256"

[profiles.dark]
root = "/home/u"
files = [".config/kitty/kitty.conf", ".config/waybar/*.css"]

[[profiles.dark.dependencies]]
from = ".config/waybar/colors.css"
to = ".config/waybar/style.css"
`)
	t.Setenv("RICEIFY_WORKERS", "6")
	t.Setenv("RICEIFY_CACHE_CONTENT_BYTES", "1024")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Workers, "env should override file")
	assert.Equal(t, "sha256", cfg.Cache.Hash)
	assert.Equal(t, int64(1024), cfg.Cache.ContentBytes)

	dark, ok := cfg.Profile("dark")
	require.True(t, ok)
	assert.Equal(t, "/home/u", dark.Root)
	assert.Len(t, dark.Files, 2)
	require.Len(t, dark.Dependencies, 1)
	assert.Equal(t, ".config/waybar/colors.css", dark.Dependencies[0].From)
	assert.Equal(t, []string{"dark"}, cfg.ProfileNames())
}

func TestLoad_ExplicitConfigEnv(t *testing.T) {
	path := writeConfig(t, "workers = 3\n")
	t.Setenv(config.EnvConfigFile, path)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "")
	tests := []struct {
		name    string
		content string
		code    errors.ErrorCode
	}{
		{"bad toml", "workers = [", errors.ErrConfigLoad},
		{"negative workers", "workers = -1", errors.ErrConfigValid},
		{"unknown hash", "[cache]\nhash = \"md5\"", errors.ErrConfigValid},
		{"profile without files", "[profiles.empty]\nroot = \"/\"", errors.ErrConfigValid},
		{"half dependency", "[profiles.p]\nfiles = [\"a\"]\n[[profiles.p.dependencies]]\nfrom = \"a\"", errors.ErrConfigValid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, tt.code), "got %v", err)
		})
	}
}

func TestValidateProfileName(t *testing.T) {
	for _, ok := range []string{"dark", "light-theme", "gruvbox_2"} {
		assert.NoError(t, config.ValidateProfileName(ok), ok)
	}
	for _, bad := range []string{"", "a/b", "a.b", "-x", `a\b`} {
		assert.Error(t, config.ValidateProfileName(bad), bad)
	}
}

func TestFromMap(t *testing.T) {
	cfg, err := config.FromMap(map[string]interface{}{
		"workers":              4,
		"profiles.light.root":  "/r",
		"profiles.light.files": []interface{}{"a.conf"},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, []string{"a.conf"}, cfg.Profiles["light"].Files)
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"kitty/kitty.conf", "waybar/colors.css", "waybar/style.css", "waybar/deep/x.css"} {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(rel), 0644))
	}

	def := config.ProfileDef{
		Root:  root,
		Files: []string{"kitty/kitty.conf", "waybar/**/*.css", "missing.conf"},
		Dependencies: []config.Dependency{
			{From: "waybar/colors.css", To: "waybar/style.css"},
		},
	}

	res, err := def.Resolve(filesystem.NewOS())
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "kitty/kitty.conf"),
		filepath.Join(root, "missing.conf"),
		filepath.Join(root, "waybar/colors.css"),
		filepath.Join(root, "waybar/deep/x.css"),
		filepath.Join(root, "waybar/style.css"),
	}, res.Files)
	assert.Equal(t, []types.DependencyEdge{{
		From: filepath.Join(root, "waybar/colors.css"),
		To:   filepath.Join(root, "waybar/style.css"),
	}}, res.Edges)
}

func TestResolve_UntrackedDependency(t *testing.T) {
	def := config.ProfileDef{
		Root:         t.TempDir(),
		Files:        []string{"a.conf"},
		Dependencies: []config.Dependency{{From: "a.conf", To: "b.conf"}},
	}

	_, err := def.Resolve(filesystem.NewOS())
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrValidation))
}

func TestResolve_GlobsThroughFS(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"waybar/colors.css", "waybar/deep/x.css", "waybar/notes.txt"} {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(rel), 0644))
	}

	t.Run("single star stays in its directory", func(t *testing.T) {
		def := config.ProfileDef{Root: root, Files: []string{"waybar/*.css"}}
		res, err := def.Resolve(filesystem.NewOS())
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(root, "waybar/colors.css")}, res.Files)
	})

	t.Run("missing base matches nothing", func(t *testing.T) {
		def := config.ProfileDef{Root: root, Files: []string{"nowhere/**/*.css"}}
		res, err := def.Resolve(filesystem.NewOS())
		require.NoError(t, err)
		assert.Empty(t, res.Files)
	})

	t.Run("unlistable directory", func(t *testing.T) {
		fsys := testutil.NewFaultFS(filesystem.NewOS())
		fsys.FailOn(testutil.OpReadDir, filepath.Join(root, "waybar/deep"), os.ErrPermission)

		def := config.ProfileDef{Root: root, Files: []string{"waybar/**/*.css"}}
		_, err := def.Resolve(fsys)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrRead))
		assert.Equal(t, []string{filepath.Join(root, "waybar/deep")}, errors.GetErrorPaths(err))
		assert.Positive(t, fsys.Calls(testutil.OpReadDir))
	})
}

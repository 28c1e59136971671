package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/riceify/pkg/paths"
	"github.com/stretchr/testify/require"
)

// Environment is an isolated tree for one test: Home holds the "live"
// configuration files, Paths points riceify's data and cache at Root.
type Environment struct {
	Root  string
	Home  string
	Paths paths.Paths
}

// NewEnvironment creates the tree under t.TempDir().
func NewEnvironment(t *testing.T) *Environment {
	t.Helper()

	root := t.TempDir()
	home := filepath.Join(root, "home")
	require.NoError(t, os.MkdirAll(home, 0755))

	return &Environment{
		Root:  root,
		Home:  home,
		Paths: paths.NewWithRoot(filepath.Join(root, "riceify")),
	}
}

// HomePath joins rel onto the home directory.
func (e *Environment) HomePath(rel string) string {
	return filepath.Join(e.Home, rel)
}

// WriteFiles writes each rel -> content pair under Home and returns the
// absolute paths in the same map shape.
func (e *Environment) WriteFiles(t *testing.T, files map[string]string) map[string]string {
	t.Helper()

	out := make(map[string]string, len(files))
	for rel, content := range files {
		path := e.HomePath(rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		out[rel] = path
	}
	return out
}

// ReadFile returns the content of a file under Home.
func (e *Environment) ReadFile(t *testing.T, rel string) string {
	t.Helper()

	data, err := os.ReadFile(e.HomePath(rel))
	require.NoError(t, err)
	return string(data)
}

// Exists reports whether a file under Home exists.
func (e *Environment) Exists(rel string) bool {
	_, err := os.Lstat(e.HomePath(rel))
	return err == nil
}

// Snapshot returns rel -> content for every regular file under Home.
func (e *Environment) Snapshot(t *testing.T) map[string]string {
	t.Helper()

	out := make(map[string]string)
	err := filepath.WalkDir(e.Home, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(e.Home, path)
		if err != nil {
			return err
		}
		out[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

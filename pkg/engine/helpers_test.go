package engine_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/arthur-debert/riceify/pkg/config"
	"github.com/arthur-debert/riceify/pkg/engine"
	"github.com/arthur-debert/riceify/pkg/filesystem"
	"github.com/arthur-debert/riceify/pkg/taskpool"
	"github.com/arthur-debert/riceify/pkg/testutil"
	"github.com/arthur-debert/riceify/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// renameLog records the destinations of renames under a directory, in
// the order they completed.
type renameLog struct {
	types.FS
	under string

	mu    sync.Mutex
	order []string
}

func (r *renameLog) Rename(oldpath, newpath string) error {
	if err := r.FS.Rename(oldpath, newpath); err != nil {
		return err
	}
	if strings.HasPrefix(newpath, r.under) {
		r.mu.Lock()
		r.order = append(r.order, newpath)
		r.mu.Unlock()
	}
	return nil
}

func (r *renameLog) renames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

type layerTrace struct {
	mu     sync.Mutex
	events []taskpool.Event
}

func (l *layerTrace) record(ev taskpool.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *layerTrace) all() []taskpool.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]taskpool.Event(nil), l.events...)
}

type fixture struct {
	env     *testutil.Environment
	faults  *testutil.FaultFS
	renames *renameLog
	trace   *layerTrace
	cfg     *config.Config
	engine  *engine.Engine
}

type fixtureOptions struct {
	observer       engine.Observer
	observerBuffer int
}

// newFixture builds an engine over a fresh environment. Profiles with an
// empty Root are rooted at the environment's home directory.
func newFixture(t *testing.T, profiles map[string]config.ProfileDef, opts ...fixtureOptions) *fixture {
	t.Helper()

	var o fixtureOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	env := testutil.NewEnvironment(t)
	renames := &renameLog{FS: filesystem.NewOS(), under: env.Home}
	faults := testutil.NewFaultFS(renames)

	cfg := config.Default()
	cfg.Workers = 4
	for name, def := range profiles {
		if def.Root == "" {
			def.Root = env.Home
		}
		cfg.Profiles[name] = def
	}
	require.NoError(t, cfg.Validate())

	trace := &layerTrace{}
	eng, err := engine.Open(cfg, engine.Setup{
		Paths:          env.Paths,
		FS:             faults,
		Logger:         zerolog.Nop(),
		Observer:       o.observer,
		ObserverBuffer: o.observerBuffer,
		Trace:          trace.record,
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	return &fixture{env: env, faults: faults, renames: renames, trace: trace, cfg: cfg, engine: eng}
}

func (f *fixture) path(rel string) string {
	return f.env.HomePath(rel)
}

func (f *fixture) write(t *testing.T, files map[string]string) {
	t.Helper()
	f.env.WriteFiles(t, files)
}

func (f *fixture) remove(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(f.path(rel)))
}

func (f *fixture) chmod(t *testing.T, rel string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.Chmod(f.path(rel), mode))
}

func (f *fixture) mode(t *testing.T, rel string) os.FileMode {
	t.Helper()
	info, err := os.Stat(f.path(rel))
	require.NoError(t, err)
	return info.Mode().Perm()
}

// stagingEmpty reports whether no per-transaction staging directory is left.
func (f *fixture) stagingEmpty(t *testing.T) bool {
	t.Helper()
	entries, err := os.ReadDir(f.env.Paths.StagingDir())
	if os.IsNotExist(err) {
		return true
	}
	require.NoError(t, err)
	return len(entries) == 0
}

// tempFilesLeft lists leftover atomic-write temp files under home.
func (f *fixture) tempFilesLeft(t *testing.T) []string {
	t.Helper()
	var left []string
	require.NoError(t, filepath.WalkDir(f.env.Home, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if filesystem.IsTempPath(path) {
			left = append(left, path)
		}
		return nil
	}))
	return left
}

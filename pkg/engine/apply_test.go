// pkg/engine/apply_test.go
// TEST TYPE: Integration Test
// DEPENDENCIES: Real filesystem under t.TempDir(), testutil.FaultFS
// PURPOSE: Test apply and restore: round trips, layering, rollback and Busy

package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/riceify/pkg/config"
	"github.com/arthur-debert/riceify/pkg/engine"
	"github.com/arthur-debert/riceify/pkg/errors"
	"github.com/arthur-debert/riceify/pkg/hashstore"
	"github.com/arthur-debert/riceify/pkg/internal/hashutil"
	"github.com/arthur-debert/riceify/pkg/taskpool"
	"github.com/arthur-debert/riceify/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var themeFiles = []string{".bashrc", ".config/kitty/kitty.conf", ".config/nvim/init.lua"}

// themeFixture saves "dark" and "light" over the same files and leaves the
// light content live.
func themeFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, map[string]config.ProfileDef{
		"dark":  {Files: themeFiles},
		"light": {Files: themeFiles},
	})

	f.write(t, map[string]string{
		".bashrc":                  "THEME=dark\n",
		".config/kitty/kitty.conf": "background #000000\n",
		".config/nvim/init.lua":    "vim.o.background = 'dark'\n",
	})
	f.chmod(t, ".bashrc", 0600)
	_, err := f.engine.Save(context.Background(), "dark")
	require.NoError(t, err)

	f.write(t, map[string]string{
		".bashrc":                  "THEME=light\n",
		".config/kitty/kitty.conf": "background #ffffff\n",
		".config/nvim/init.lua":    "vim.o.background = 'light'\n",
	})
	f.chmod(t, ".bashrc", 0644)
	_, err = f.engine.Save(context.Background(), "light")
	require.NoError(t, err)
	return f
}

func TestApply_ThenRestoreRoundTrip(t *testing.T) {
	f := themeFixture(t)
	before := f.env.Snapshot(t)

	res, err := f.engine.Apply(context.Background(), "dark")
	require.NoError(t, err)
	assert.False(t, res.NoOp)
	assert.Equal(t, engine.StateDone, res.Transaction.State)
	assert.Equal(t, 3, res.Transaction.Count(engine.ActionWritten))
	assert.Equal(t, "THEME=dark\n", f.env.ReadFile(t, ".bashrc"))
	assert.Equal(t, os.FileMode(0600), f.mode(t, ".bashrc"), "permission bits follow the profile")
	require.NotNil(t, res.Transaction.Backup)
	assert.Len(t, res.Transaction.Backup.Files, 3)

	res, err = f.engine.RestorePrevious(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.KindRestore, res.Transaction.Kind)
	assert.Equal(t, before, f.env.Snapshot(t), "restore returns the exact pre-apply bytes")
	assert.Equal(t, os.FileMode(0644), f.mode(t, ".bashrc"))

	_, err = f.engine.RestorePrevious(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "THEME=dark\n", f.env.ReadFile(t, ".bashrc"), "restoring twice toggles")

	assert.True(t, f.stagingEmpty(t))
	assert.Empty(t, f.tempFilesLeft(t))
}

func TestRestore_DeletesFilesThatDidNotExist(t *testing.T) {
	f := newFixture(t, map[string]config.ProfileDef{
		"sway": {Files: []string{".config/sway/config", ".config/waybar/style.css"}},
	})
	f.write(t, map[string]string{
		".config/sway/config":      "set $mod Mod4\n",
		".config/waybar/style.css": "* { font-size: 12px; }\n",
	})
	_, err := f.engine.Save(context.Background(), "sway")
	require.NoError(t, err)

	f.remove(t, ".config/waybar/style.css")
	f.write(t, map[string]string{".config/sway/config": "set $mod Mod1\n"})
	before := f.env.Snapshot(t)

	_, err = f.engine.Apply(context.Background(), "sway")
	require.NoError(t, err)
	assert.True(t, f.env.Exists(".config/waybar/style.css"))

	res, err := f.engine.RestorePrevious(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Transaction.Count(engine.ActionDeleted))
	assert.False(t, f.env.Exists(".config/waybar/style.css"))
	assert.Equal(t, before, f.env.Snapshot(t))
}

func TestApply_SkipsMatchingFilesAndNoOp(t *testing.T) {
	f := themeFixture(t)
	f.write(t, map[string]string{".bashrc": "THEME=dark\n"})
	f.chmod(t, ".bashrc", 0600)

	res, err := f.engine.Apply(context.Background(), "dark")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Transaction.Count(engine.ActionSkipped))
	assert.Equal(t, 2, res.Transaction.Count(engine.ActionWritten))
	assert.Len(t, res.Transaction.Backup.Files, 2, "only touched files are backed up")

	res, err = f.engine.Apply(context.Background(), "dark")
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Nil(t, res.Transaction.Backup)
	assert.Equal(t, 3, res.Transaction.CacheHits)

	// the no-op apply did not replace the previous state
	_, err = f.engine.RestorePrevious(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "background #ffffff\n", f.env.ReadFile(t, ".config/kitty/kitty.conf"))
}

func layeredProfile() map[string]config.ProfileDef {
	return map[string]config.ProfileDef{
		"layered": {
			Files: []string{"colors", "style", "bar", "final"},
			Dependencies: []config.Dependency{
				{From: "colors", To: "style"},
				{From: "style", To: "final"},
				{From: "bar", To: "final"},
			},
		},
	}
}

func saveLayered(t *testing.T, f *fixture) {
	t.Helper()
	f.write(t, map[string]string{"colors": "c1", "style": "s1", "bar": "b1", "final": "f1"})
	_, err := f.engine.Save(context.Background(), "layered")
	require.NoError(t, err)
	f.write(t, map[string]string{"colors": "c0", "style": "s0", "bar": "b0", "final": "f0"})
}

func TestApply_DependencyOrder(t *testing.T) {
	f := newFixture(t, layeredProfile())
	saveLayered(t, f)

	res, err := f.engine.Apply(context.Background(), "layered")
	require.NoError(t, err)

	events := f.trace.all()
	require.Len(t, events, 6)
	for i := 0; i < 3; i++ {
		assert.Equal(t, taskpool.LayerStarted, events[2*i].Kind)
		assert.Equal(t, i, events[2*i].Layer)
		assert.Equal(t, taskpool.LayerFinished, events[2*i+1].Kind)
		assert.Equal(t, i, events[2*i+1].Layer)
	}
	assert.Equal(t, 2, events[0].Ops, "colors and bar share the first layer")

	layerOf := map[string]int{}
	for _, o := range res.Transaction.Outcomes {
		layerOf[filepath.Base(o.Path)] = o.Layer
	}
	assert.Equal(t, map[string]int{"colors": 0, "bar": 0, "style": 1, "final": 2}, layerOf)

	order := map[string]int{}
	for i, p := range f.renames.renames() {
		order[filepath.Base(p)] = i
	}
	edges := [][2]string{{"colors", "style"}, {"style", "final"}, {"bar", "final"}}
	for _, e := range edges {
		assert.Less(t, order[e[0]], order[e[1]], "%s must be written before %s", e[0], e[1])
	}
}

func TestApply_WriteFailureRollsBack(t *testing.T) {
	f := newFixture(t, layeredProfile())
	saveLayered(t, f)
	before := f.env.Snapshot(t)

	f.faults.FailOnce(testutil.OpRename, f.path("style"), os.ErrPermission)

	res, err := f.engine.Apply(context.Background(), "layered")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrWrite))
	assert.Equal(t, []string{f.path("style")}, errors.GetErrorPaths(err))
	assert.Equal(t, engine.StateRolledBack, res.Transaction.State)
	assert.Equal(t, engine.StateRolledBack, f.engine.State())

	assert.Equal(t, before, f.env.Snapshot(t), "every touched file is back to its pre-apply content")
	assert.Equal(t, 3, res.Transaction.Count(engine.ActionRestored), "started layers are restored, failing file included")
	assert.True(t, f.stagingEmpty(t))
	assert.Empty(t, f.tempFilesLeft(t))

	_, err = f.engine.RestorePrevious(context.Background())
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound), "a rolled back apply records no previous state")

	last := f.engine.LastTransaction()
	require.NotNil(t, last)
	assert.Equal(t, engine.KindRestore, last.Kind)
}

func TestApply_RollbackIncomplete(t *testing.T) {
	f := newFixture(t, layeredProfile())
	saveLayered(t, f)

	f.faults.FailOn(testutil.OpRename, f.path("style"), os.ErrPermission)

	res, err := f.engine.Apply(context.Background(), "layered")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrRollbackIncomplete))
	assert.ErrorIs(t, err, errors.RollbackIncomplete)
	assert.Equal(t, []string{f.path("style")}, errors.GetErrorPaths(err))
	assert.Equal(t, engine.StateFailed, res.Transaction.State)

	assert.Equal(t, "c0", f.env.ReadFile(t, "colors"))
	assert.Equal(t, "b0", f.env.ReadFile(t, "bar"))
	assert.Equal(t, "f0", f.env.ReadFile(t, "final"), "later layers never started")
}

func TestApply_CommitFailureRollsBack(t *testing.T) {
	f := themeFixture(t)
	before := f.env.Snapshot(t)

	f.faults.FailOn(testutil.OpRename, filepath.Join(f.env.Paths.BackupsDir(), "PREVIOUS"), os.ErrPermission)

	res, err := f.engine.Apply(context.Background(), "dark")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrWrite))
	assert.Equal(t, engine.StateRolledBack, res.Transaction.State)
	assert.Equal(t, before, f.env.Snapshot(t))
	assert.Equal(t, 3, res.Transaction.Count(engine.ActionRestored))

	hashes, err := hashstore.Open(hashstore.Options{Path: f.env.Paths.HashCachePath(), Hasher: hashutil.Default()})
	require.NoError(t, err)
	for _, name := range themeFiles {
		live, err := os.ReadFile(f.path(name))
		require.NoError(t, err)
		if rec, ok := hashes.Lookup(f.path(name)); ok && !rec.Invalid {
			assert.Equal(t, hashutil.Default().Sum(live), rec.Hash, "%s: persisted entry must describe the restored file", name)
		}
	}
}

func TestApply_CancelledDuringCapture(t *testing.T) {
	f := themeFixture(t)
	before := f.env.Snapshot(t)

	entered, release := f.faults.HoldUnder(testutil.OpWriteFile, f.env.Paths.StagingDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res *engine.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.engine.Apply(ctx, "dark")
		done <- outcome{res, err}
	}()

	<-entered
	cancel()
	release()

	out := <-done
	require.Error(t, out.err)
	assert.True(t, errors.IsErrorCode(out.err, errors.ErrCancelled))
	assert.Equal(t, engine.StateRolledBack, out.res.Transaction.State)
	assert.Zero(t, out.res.Transaction.Count(engine.ActionWritten))
	assert.Equal(t, before, f.env.Snapshot(t))
	assert.True(t, f.stagingEmpty(t))

	_, err := f.engine.RestorePrevious(context.Background())
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound), "light stays the previous state")
}

func TestApply_CancelledBetweenLayers(t *testing.T) {
	f := newFixture(t, layeredProfile())
	saveLayered(t, f)
	before := f.env.Snapshot(t)

	entered, release := f.faults.Hold(testutil.OpWriteFile, f.path("colors"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res *engine.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.engine.Apply(ctx, "layered")
		done <- outcome{res, err}
	}()

	<-entered
	cancel()
	release()

	out := <-done
	require.Error(t, out.err)
	assert.True(t, errors.IsErrorCode(out.err, errors.ErrCancelled))
	assert.Equal(t, engine.StateRolledBack, out.res.Transaction.State)
	assert.Equal(t, before, f.env.Snapshot(t))
	assert.True(t, f.stagingEmpty(t))
}

func TestApply_ConcurrentCallIsBusy(t *testing.T) {
	f := themeFixture(t)

	entered, release := f.faults.Hold(testutil.OpWriteFile, f.path(".bashrc"))

	type outcome struct {
		res *engine.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.engine.Apply(context.Background(), "dark")
		done <- outcome{res, err}
	}()

	<-entered
	assert.Equal(t, engine.StateApplying, f.engine.State())

	res, err := f.engine.Apply(context.Background(), "light")
	assert.Nil(t, res)
	assert.True(t, errors.IsErrorCode(err, errors.ErrBusy))
	assert.ErrorIs(t, err, errors.Busy)
	assert.Equal(t, engine.StateApplying, f.engine.State(), "a rejected call changes no state")

	_, err = f.engine.Save(context.Background(), "light")
	assert.True(t, errors.IsErrorCode(err, errors.ErrBusy))
	assert.True(t, errors.IsErrorCode(f.engine.ClearCache(), errors.ErrBusy))

	release()
	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, engine.StateDone, out.res.Transaction.State)
	assert.Equal(t, "THEME=dark\n", f.env.ReadFile(t, ".bashrc"))
}

func TestApply_Failures(t *testing.T) {
	t.Run("unknown profile", func(t *testing.T) {
		f := newFixture(t, nil)
		res, err := f.engine.Apply(context.Background(), "missing")
		assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
		assert.Equal(t, engine.StateFailed, res.Transaction.State)
	})

	t.Run("invalid name", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.engine.Apply(context.Background(), "../x")
		assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
		assert.Equal(t, engine.StateIdle, f.engine.State())
	})

	t.Run("nothing to restore", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.engine.RestorePrevious(context.Background())
		assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
	})

	t.Run("unreadable live file writes nothing", func(t *testing.T) {
		f := themeFixture(t)
		before := f.env.Snapshot(t)
		f.faults.FailOn(testutil.OpReadFile, f.path(".config/nvim/init.lua"), os.ErrPermission)

		res, err := f.engine.Apply(context.Background(), "dark")
		assert.True(t, errors.IsErrorCode(err, errors.ErrRead))
		assert.Equal(t, engine.StateRolledBack, res.Transaction.State)
		assert.Zero(t, res.Transaction.Count(engine.ActionWritten))
		assert.Equal(t, before, f.env.Snapshot(t))
	})
}

package engine

import (
	"context"
	"io/fs"
	"sort"

	"github.com/arthur-debert/riceify/pkg/config"
	"github.com/arthur-debert/riceify/pkg/depgraph"
	"github.com/arthur-debert/riceify/pkg/errors"
	"github.com/arthur-debert/riceify/pkg/hashstore"
	"github.com/arthur-debert/riceify/pkg/logging"
	"github.com/arthur-debert/riceify/pkg/taskpool"
	"github.com/arthur-debert/riceify/pkg/types"
)

// PreviousTarget is the target name restore transactions report.
const PreviousTarget = "previous"

// Apply makes the latest saved version of profile name live.
func (e *Engine) Apply(ctx context.Context, name string) (*Result, error) {
	if err := config.ValidateProfileName(name); err != nil {
		return nil, err
	}
	tx, err := e.begin(KindApply, name)
	if err != nil {
		return nil, err
	}
	defer logging.LogOperationStart(e.logger, "apply")()

	target, err := e.snapshots.Latest(name)
	if err != nil {
		e.finish(tx, StateFailed, err)
		return &Result{Transaction: tx}, err
	}
	tx.Version = target.Version
	return e.switchTo(ctx, tx, target)
}

// RestorePrevious returns every file touched by the last successful switch
// to its content before that switch. The files it overwrites become the new
// previous state, so restoring twice toggles.
func (e *Engine) RestorePrevious(ctx context.Context) (*Result, error) {
	tx, err := e.begin(KindRestore, PreviousTarget)
	if err != nil {
		return nil, err
	}
	defer logging.LogOperationStart(e.logger, "restore")()

	target, err := e.snapshots.Previous()
	if err != nil {
		e.finish(tx, StateFailed, err)
		return &Result{Transaction: tx}, err
	}
	return e.switchTo(ctx, tx, target)
}

// change is one file a switch rewrites or deletes.
type change struct {
	target types.FileRecord
	data   []byte
	layer  int

	// staged is where the live content was copied; backup describes it.
	staged string
	backup types.FileRecord
}

type switchPlan struct {
	graph *depgraph.Graph
	// layers holds the changes of each non-empty dependency layer, in order.
	layers [][]*change
	// changes lists every change sorted by path.
	changes []*change
	// observed are live records the hash cache does not know yet.
	observed []types.FileRecord
}

func (p *switchPlan) paths() []string {
	out := make([]string, len(p.changes))
	for i, c := range p.changes {
		out[i] = c.target.Path
	}
	return out
}

// switchTo runs a switch to target. Once the target has been validated,
// every failure goes through rollback, so the terminal state is RolledBack
// unless a touched file could not be restored.
func (e *Engine) switchTo(ctx context.Context, tx *Transaction, target *types.Profile) (*Result, error) {
	res := &Result{Transaction: tx, Profile: target}

	plan, err := e.plan(ctx, tx, target)
	if err != nil {
		if errors.IsErrorCode(err, errors.ErrValidation) {
			e.finish(tx, StateFailed, err)
			return res, err
		}
		return res, e.rollback(ctx, tx, plan, 0, err)
	}

	if len(plan.changes) == 0 {
		e.transition(tx, StateCommitting)
		e.recordObserved(tx, plan, taskpool.LayersResult{})
		res.NoOp = true
		e.finish(tx, StateDone, nil)
		return res, nil
	}

	e.transition(tx, StateCapturingBackup)
	st, err := e.capture(ctx, tx, plan)
	defer e.removeStaging(st)
	if err != nil {
		return res, e.rollback(ctx, tx, plan, 0, err)
	}

	e.transition(tx, StateApplying)
	lr := e.pool.RunLayers(ctx, writeLayers(plan))
	for li, results := range lr.Results {
		for _, r := range results {
			action := ActionWritten
			if r.Op.Kind == taskpool.KindDeleteFile {
				action = ActionDeleted
			}
			if !r.OK() {
				action = ActionFailed
			}
			e.record(tx, FileOutcome{Path: r.Op.Path, Action: action, Hash: r.Record.Hash, Layer: plan.layers[li][0].layer, Err: r.Err})
		}
	}
	if lr.Err != nil {
		return res, e.rollback(ctx, tx, plan, len(lr.Results), lr.Err)
	}

	e.transition(tx, StateCommitting)
	if err := e.commitSwitch(tx, plan); err != nil {
		return res, e.rollback(ctx, tx, plan, len(plan.layers), err)
	}
	e.recordObserved(tx, plan, lr)

	e.finish(tx, StateDone, nil)
	return res, nil
}

// plan validates the target, hashes the live files and works out which
// ones differ. Nothing is written.
func (e *Engine) plan(ctx context.Context, tx *Transaction, target *types.Profile) (*switchPlan, error) {
	graph := depgraph.FromEdges(target.Paths(), target.Edges)
	layers, err := graph.Layers()
	if err != nil {
		return nil, validationError(err)
	}
	layerOf := make(map[string]int, graph.Len())
	for i, l := range layers {
		for _, p := range l {
			layerOf[p] = i
		}
	}

	checks := e.pool.Run(ctx, hashChecks(target.Paths()))
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCancelled, "cancelled while checking live files")
	}

	plan := &switchPlan{graph: graph}
	var unreadable []taskpool.Result
	for i, live := range checks {
		want := target.Files[i]
		if live.Err != nil && !live.Absent {
			unreadable = append(unreadable, live)
			continue
		}

		if !live.Absent {
			if e.hashes.Classify(live.Record.Path, live.Record.Hash, live.Record.ModTime) == hashstore.Unchanged {
				tx.CacheHits++
			} else {
				tx.CacheMisses++
				plan.observed = append(plan.observed, live.Record)
			}
		}

		if matches(want, live) {
			e.record(tx, FileOutcome{Path: want.Path, Action: ActionSkipped, Hash: want.Hash, Layer: layerOf[want.Path]})
			continue
		}
		plan.changes = append(plan.changes, &change{target: want, layer: layerOf[want.Path]})
	}
	e.cacheChecked(tx)
	if err := taskpool.Collect(unreadable); err != nil {
		return nil, err
	}

	for _, c := range plan.changes {
		if c.target.Absent {
			continue
		}
		data, err := e.snapshots.ReadObject(c.target.Hash)
		if err != nil {
			return nil, errors.Wrapf(err, errors.GetErrorCode(err), "cannot load content for %s", c.target.Path).
				WithPaths(c.target.Path)
		}
		c.data = data
	}

	byLayer := make([][]*change, len(layers))
	for _, c := range plan.changes {
		byLayer[c.layer] = append(byLayer[c.layer], c)
	}
	for _, l := range byLayer {
		if len(l) > 0 {
			plan.layers = append(plan.layers, l)
		}
	}
	return plan, nil
}

// matches reports whether the live file already is what want describes.
func matches(want types.FileRecord, live taskpool.Result) bool {
	if want.Absent || live.Absent {
		return want.Absent == live.Absent
	}
	return live.Record.Hash == want.Hash && live.Record.Mode == want.FileMode()
}

// capture copies every file the switch will touch into staging. It must
// fully succeed before anything is written.
func (e *Engine) capture(ctx context.Context, tx *Transaction, plan *switchPlan) (*staging, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCancelled, "cancelled before capturing backup")
	}
	st, err := e.newStaging(tx)
	if err != nil {
		return nil, err
	}

	ops := make([]taskpool.Op, len(plan.changes))
	for i, c := range plan.changes {
		c.staged = st.path(i)
		ops[i] = taskpool.CopyToBackup(c.target.Path, c.staged)
	}
	results := e.pool.Run(ctx, ops)
	if err := ctx.Err(); err != nil {
		return st, errors.Wrap(err, errors.ErrCancelled, "cancelled while capturing backup")
	}
	if err := taskpool.Collect(results); err != nil {
		return st, err
	}

	backup := &types.Profile{
		Name:      tx.ID,
		Kind:      types.ProfileKindBackup,
		CreatedAt: e.now().UTC(),
		Edges:     plan.graph.Subgraph(plan.paths()).Edges(),
	}
	for i, r := range results {
		plan.changes[i].backup = r.Record
		backup.Files = append(backup.Files, r.Record)
	}
	tx.Backup = backup
	return st, nil
}

func writeLayers(plan *switchPlan) [][]taskpool.Op {
	layers := make([][]taskpool.Op, len(plan.layers))
	for i, l := range plan.layers {
		for _, c := range l {
			if c.target.Absent {
				layers[i] = append(layers[i], taskpool.DeleteFile(c.target.Path))
			} else {
				layers[i] = append(layers[i], taskpool.WriteFile(c.target.Path, c.data, fs.FileMode(c.target.FileMode())))
			}
		}
	}
	return layers
}

// commitSwitch stores the backup as the new previous state. Moving the
// previous pointer is the commit point of a switch.
func (e *Engine) commitSwitch(tx *Transaction, plan *switchPlan) error {
	for _, c := range plan.changes {
		if c.backup.Absent {
			continue
		}
		if err := e.snapshots.IngestObject(c.backup.Hash, c.staged); err != nil {
			return err
		}
	}
	return e.snapshots.SetPrevious(tx.Backup)
}

// recordObserved records the written files and the live files the switch
// left alone in the hash cache, then persists it. It runs after the commit
// point, so a persistence failure is logged and the on-disk cache keeps its
// older entries, whose mtimes no longer match the live files.
func (e *Engine) recordObserved(tx *Transaction, plan *switchPlan, lr taskpool.LayersResult) {
	changed := make(map[string]bool, len(plan.changes))
	for _, c := range plan.changes {
		changed[c.target.Path] = true
	}
	for _, rec := range plan.observed {
		if !changed[rec.Path] {
			e.hashes.Update(rec.Path, rec.Hash, rec.Size, rec.ModTime)
		}
	}
	for _, results := range lr.Results {
		for _, r := range results {
			if r.Op.Kind == taskpool.KindDeleteFile {
				e.hashes.Invalidate(r.Op.Path)
				continue
			}
			e.hashes.Update(r.Record.Path, r.Record.Hash, r.Record.Size, r.Record.ModTime)
		}
	}
	e.persistHashes(tx)
}

func (e *Engine) persistHashes(tx *Transaction) {
	if err := e.hashes.Save(); err != nil {
		e.logger.Warn().Err(err).
			Str("tx", tx.ID).
			Str("code", string(errors.GetErrorCode(err))).
			Msg("Hash cache not persisted")
	}
}

// rollback restores the files of the first started layers from staging,
// last layer first, and marks their hash cache entries stale. It runs to
// completion even when ctx is cancelled. With no started layer nothing was
// written and the transaction simply ends RolledBack.
func (e *Engine) rollback(ctx context.Context, tx *Transaction, plan *switchPlan, started int, cause error) error {
	e.transition(tx, StateRollingBack)
	ctx = context.WithoutCancel(ctx)

	e.logger.Warn().Err(cause).Str("tx", tx.ID).Int("layers", started).Msg("Rolling back")

	byPath := make(map[string]*change)
	layers := make([][]string, started)
	for li := 0; li < started; li++ {
		for _, c := range plan.layers[li] {
			byPath[c.target.Path] = c
			layers[li] = append(layers[li], c.target.Path)
		}
	}

	var failed []string
	for _, layer := range depgraph.Reverse(layers) {
		var ops []taskpool.Op
		for _, path := range layer {
			c := byPath[path]
			if c.backup.Absent {
				ops = append(ops, taskpool.DeleteFile(path))
				continue
			}
			data, err := e.fs.ReadFile(c.staged)
			if err != nil {
				failed = append(failed, path)
				e.record(tx, FileOutcome{Path: path, Action: ActionFailed, Layer: c.layer,
					Err: errors.Wrapf(err, errors.ErrRead, "staged copy of %s is unreadable", path)})
				continue
			}
			ops = append(ops, taskpool.WriteFile(path, data, fs.FileMode(c.backup.FileMode())))
		}

		for _, r := range e.pool.Run(ctx, ops) {
			layer := byPath[r.Op.Path].layer
			if !r.OK() {
				failed = append(failed, r.Op.Path)
				e.record(tx, FileOutcome{Path: r.Op.Path, Action: ActionFailed, Layer: layer, Err: r.Err})
				continue
			}
			e.record(tx, FileOutcome{Path: r.Op.Path, Action: ActionRestored, Hash: r.Record.Hash, Layer: layer})
		}
	}

	if len(byPath) > 0 {
		for path := range byPath {
			e.hashes.Invalidate(path)
		}
		e.persistHashes(tx)
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		err := errors.Wrapf(cause, errors.ErrRollbackIncomplete, "rollback could not restore %d file(s)", len(failed)).
			WithPaths(failed...)
		e.finish(tx, StateFailed, err)
		return err
	}
	e.finish(tx, StateRolledBack, cause)
	return cause
}

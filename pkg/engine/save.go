package engine

import (
	"context"
	stderrors "errors"

	"github.com/arthur-debert/riceify/pkg/depgraph"
	"github.com/arthur-debert/riceify/pkg/errors"
	"github.com/arthur-debert/riceify/pkg/hashstore"
	"github.com/arthur-debert/riceify/pkg/logging"
	"github.com/arthur-debert/riceify/pkg/taskpool"
	"github.com/arthur-debert/riceify/pkg/types"
)

// Save captures the files tracked by the profile definition name as the
// profile's next version. Saving content identical to the latest version
// returns that version with NoOp set. Read failures, cycles and bad edges
// fail the save before anything is persisted.
func (e *Engine) Save(ctx context.Context, name string) (*Result, error) {
	tx, err := e.begin(KindSave, name)
	if err != nil {
		return nil, err
	}
	defer logging.LogOperationStart(e.logger, "save")()

	res := &Result{Transaction: tx}
	e.transition(tx, StateCapturing)
	if err := e.save(ctx, tx, res); err != nil {
		e.finish(tx, StateFailed, err)
		return res, err
	}
	e.finish(tx, StateDone, nil)
	return res, nil
}

func (e *Engine) save(ctx context.Context, tx *Transaction, res *Result) error {
	def, ok := e.cfg.Profile(tx.Target)
	if !ok {
		return errors.Newf(errors.ErrNotFound, "profile %q is not defined in the configuration", tx.Target)
	}
	resolved, err := def.Resolve(e.fs)
	if err != nil {
		return err
	}
	if len(resolved.Files) == 0 {
		return errors.Newf(errors.ErrValidation, "profile %q matches no files", tx.Target)
	}

	graph := depgraph.FromEdges(resolved.Files, resolved.Edges)
	if _, err := graph.TopologicalOrder(); err != nil {
		return validationError(err)
	}

	checks := e.pool.Run(ctx, hashChecks(resolved.Files))
	if err := taskpool.Collect(checks); err != nil {
		return err
	}

	records := make([]types.FileRecord, len(checks))
	verdicts := make([]hashstore.Verdict, len(checks))
	var missing []int
	for i, r := range checks {
		records[i] = r.Record
		verdicts[i] = e.hashes.Classify(r.Record.Path, r.Record.Hash, r.Record.ModTime)
		if verdicts[i] == hashstore.Unchanged {
			tx.CacheHits++
		} else {
			tx.CacheMisses++
		}
		if !e.snapshots.HasObject(r.Record.Hash) {
			missing = append(missing, i)
		}
	}
	e.cacheChecked(tx)

	var st *staging
	if len(missing) > 0 {
		st, err = e.newStaging(tx)
		if err != nil {
			return err
		}
		defer e.removeStaging(st)

		ops := make([]taskpool.Op, len(missing))
		for k, i := range missing {
			ops[k] = taskpool.CopyToBackup(records[i].Path, st.path(k))
		}
		copies := e.pool.Run(ctx, ops)
		if err := taskpool.Collect(copies); err != nil {
			return err
		}
		for k, i := range missing {
			c := copies[k]
			if c.Absent {
				return errors.Newf(errors.ErrRead, "%s disappeared while saving", c.Op.Path).WithPaths(c.Op.Path)
			}
			if c.Record.Hash != records[i].Hash {
				verdicts[i] = hashstore.Changed
			}
			records[i] = c.Record
		}
	}

	e.transition(tx, StateCommitting)

	for k, i := range missing {
		if err := e.snapshots.IngestObject(records[i].Hash, st.path(k)); err != nil {
			return err
		}
	}

	for i := range records {
		records[i].DependencyIDs = graph.Predecessors(records[i].Path)
	}
	profile := &types.Profile{
		Name:      tx.Target,
		Kind:      types.ProfileKindUser,
		CreatedAt: e.now().UTC(),
		Files:     records,
		Edges:     graph.Edges(),
	}

	// The cache is persisted before the manifest; a failure here must leave
	// no new version behind.
	for i, rec := range records {
		if verdicts[i] != hashstore.Unchanged {
			e.hashes.Update(rec.Path, rec.Hash, rec.Size, rec.ModTime)
		}
	}
	if err := e.hashes.Save(); err != nil {
		return err
	}

	saved, created, err := e.snapshots.SaveProfile(profile)
	if err != nil {
		return err
	}

	stored := make(map[int]bool, len(missing))
	for _, i := range missing {
		stored[i] = true
	}
	for i, rec := range records {
		action := ActionUnchanged
		if stored[i] {
			action = ActionStored
		}
		e.record(tx, FileOutcome{Path: rec.Path, Action: action, Hash: rec.Hash, Layer: -1})
	}

	tx.Version = saved.Version
	res.Profile = saved
	res.NoOp = !created
	return nil
}

func hashChecks(paths []string) []taskpool.Op {
	ops := make([]taskpool.Op, len(paths))
	for i, p := range paths {
		ops[i] = taskpool.HashCheck(p)
	}
	return ops
}

// validationError wraps graph errors as ErrValidation, naming the cycle.
func validationError(err error) error {
	var cycle *depgraph.CycleError
	if stderrors.As(err, &cycle) {
		return errors.Wrap(err, errors.ErrValidation, "profile dependencies form a cycle").WithPaths(cycle.Cycle...)
	}
	return errors.Wrap(err, errors.ErrValidation, "invalid profile dependencies")
}

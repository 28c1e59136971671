// Package engine implements the switch engine: saving the tracked files of
// a profile into the snapshot store, making a saved profile live, and
// returning to the state captured before the last switch.
//
// A switch never leaves the live filesystem half-written. Every file it
// touches is copied aside before the first write, writes happen layer by
// layer in dependency order, and any failure or cancellation restores the
// copies in reverse layer order. Only one transaction runs per engine at a
// time; a second request fails with ErrBusy instead of queueing.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/arthur-debert/riceify/pkg/config"
	"github.com/arthur-debert/riceify/pkg/errors"
	"github.com/arthur-debert/riceify/pkg/filesystem"
	"github.com/arthur-debert/riceify/pkg/hashstore"
	"github.com/arthur-debert/riceify/pkg/logging"
	"github.com/arthur-debert/riceify/pkg/snapshot"
	"github.com/arthur-debert/riceify/pkg/taskpool"
	"github.com/arthur-debert/riceify/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options holds everything the engine works with. Nothing else is consulted.
type Options struct {
	FS        types.FS
	Config    *config.Config
	Hashes    *hashstore.Store
	Snapshots *snapshot.Store
	Pool      *taskpool.Pool

	// StagingDir holds per-transaction backup copies.
	StagingDir string

	Logger zerolog.Logger
	// Observer receives events asynchronously. nil disables delivery.
	Observer       Observer
	ObserverBuffer int

	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine is the switch engine.
type Engine struct {
	fs         types.FS
	cfg        *config.Config
	hashes     *hashstore.Store
	snapshots  *snapshot.Store
	pool       *taskpool.Pool
	stagingDir string
	logger     zerolog.Logger
	events     *dispatcher
	now        func() time.Time

	active atomic.Bool

	mu    sync.Mutex
	state State
	last  *Transaction
}

// New creates an engine from opts.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New(errors.ErrInvalidInput, "engine needs a configuration")
	case opts.Hashes == nil:
		return nil, errors.New(errors.ErrInvalidInput, "engine needs a hash store")
	case opts.Snapshots == nil:
		return nil, errors.New(errors.ErrInvalidInput, "engine needs a snapshot store")
	case opts.Pool == nil:
		return nil, errors.New(errors.ErrInvalidInput, "engine needs a task pool")
	case opts.StagingDir == "":
		return nil, errors.New(errors.ErrInvalidInput, "engine needs a staging directory")
	}

	fsys := opts.FS
	if fsys == nil {
		fsys = filesystem.NewOS()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		fs:         fsys,
		cfg:        opts.Config,
		hashes:     opts.Hashes,
		snapshots:  opts.Snapshots,
		pool:       opts.Pool,
		stagingDir: opts.StagingDir,
		logger:     logging.Component(opts.Logger, "engine"),
		now:        now,
		state:      StateIdle,
	}
	if opts.Observer != nil {
		e.events = newDispatcher(opts.Observer, opts.ObserverBuffer, e.logger)
	}
	return e, nil
}

// Close flushes pending observer events. The engine must not be used after.
func (e *Engine) Close() {
	e.events.close()
}

// State returns the state of the running transaction, or the terminal
// state of the last one, or StateIdle.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastTransaction returns a copy of the last finished transaction, or nil.
func (e *Engine) LastTransaction() *Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return nil
	}
	return e.last.clone()
}

// DroppedEvents returns how many observer events were dropped because the
// dispatcher queue was full.
func (e *Engine) DroppedEvents() int64 {
	return e.events.droppedCount()
}

// acquire claims the engine for one operation or fails with ErrBusy.
func (e *Engine) acquire() error {
	if !e.active.CompareAndSwap(false, true) {
		return errors.New(errors.ErrBusy, "another transaction is in progress")
	}
	return nil
}

func (e *Engine) release() {
	e.active.Store(false)
}

// begin claims the engine and starts a transaction in StateIdle.
func (e *Engine) begin(kind Kind, target string) (*Transaction, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	tx := &Transaction{
		ID:        uuid.NewString(),
		Kind:      kind,
		Target:    target,
		State:     StateIdle,
		StartedAt: e.now(),
	}
	e.mu.Lock()
	e.state = StateIdle
	e.mu.Unlock()
	return tx, nil
}

func (e *Engine) transition(tx *Transaction, to State) {
	from := tx.State
	tx.State = to

	e.mu.Lock()
	e.state = to
	e.mu.Unlock()

	e.logger.Debug().Str("tx", tx.ID).Str("from", string(from)).Str("to", string(to)).Msg("Transition")
	change := StateChange{TransactionID: tx.ID, Kind: tx.Kind, Target: tx.Target, From: from, To: to}
	e.events.send(func(o Observer) { o.StateChanged(change) })
}

// finish moves tx to its terminal state, archives it and releases the engine.
func (e *Engine) finish(tx *Transaction, to State, err error) {
	tx.Err = err
	tx.FinishedAt = e.now()
	e.transition(tx, to)

	e.mu.Lock()
	e.last = tx
	e.mu.Unlock()
	e.release()

	ev := e.logger.Info()
	if err != nil {
		ev = e.logger.Error().Err(err)
	}
	ev.Str("tx", tx.ID).
		Str("kind", string(tx.Kind)).
		Str("target", tx.Target).
		Str("state", string(to)).
		Dur("duration", tx.Duration()).
		Msg("Transaction finished")
}

func (e *Engine) record(tx *Transaction, o FileOutcome) {
	o.TransactionID = tx.ID
	tx.Outcomes = append(tx.Outcomes, o)
	e.events.send(func(obs Observer) { obs.FileProcessed(o) })
}

func (e *Engine) cacheChecked(tx *Transaction) {
	stats := CacheStats{TransactionID: tx.ID, Hits: tx.CacheHits, Misses: tx.CacheMisses}
	e.events.send(func(o Observer) { o.CacheChecked(stats) })
}

// Profiles summarizes the saved profiles.
func (e *Engine) Profiles() ([]snapshot.Summary, error) {
	return e.snapshots.List()
}

// DeleteProfile removes every saved version of name.
func (e *Engine) DeleteProfile(name string) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	if err := e.snapshots.DeleteProfile(name); err != nil {
		return err
	}
	e.logger.Info().Str("profile", name).Msg("Profile deleted")
	return nil
}

// ClearCache drops every hash cache entry and the in-memory content cache.
// The next save or apply hashes every file from scratch.
func (e *Engine) ClearCache() error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	e.hashes.Reset()
	e.snapshots.ClearContentCache()
	if err := e.hashes.Save(); err != nil {
		return err
	}
	e.logger.Info().Str("path", e.hashes.Path()).Msg("Hash cache cleared")
	return nil
}

// CacheStatus describes both caches.
type CacheStatus struct {
	Hashes        hashstore.Status           `json:"hashes" yaml:"hashes"`
	Content       snapshot.ContentCacheStats `json:"content" yaml:"content"`
	Workers       int                        `json:"workers" yaml:"workers"`
	DroppedEvents int64                      `json:"dropped_events" yaml:"dropped_events"`
}

// CacheStatus returns the cache counters. It never mutates entries.
func (e *Engine) CacheStatus() CacheStatus {
	return CacheStatus{
		Hashes:        e.hashes.Status(),
		Content:       e.snapshots.ContentCache(),
		Workers:       e.pool.Workers(),
		DroppedEvents: e.events.droppedCount(),
	}
}

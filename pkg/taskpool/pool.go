// Package taskpool runs file operations on a bounded set of goroutines.
//
// A batch submitted to the pool is a layer: Handle.Wait returns only once
// every operation of the batch has finished, which is the barrier the
// switch engine relies on before starting the next layer. Failures are
// collected per operation and never retried.
package taskpool

import (
	"context"
	stderrors "errors"
	"runtime"
	"sync"

	"github.com/arthur-debert/riceify/pkg/errors"
	"github.com/arthur-debert/riceify/pkg/filesystem"
	"github.com/arthur-debert/riceify/pkg/internal/hashutil"
	"github.com/arthur-debert/riceify/pkg/types"
)

// EventKind identifies a trace event.
type EventKind string

const (
	LayerStarted  EventKind = "layer-started"
	LayerFinished EventKind = "layer-finished"
)

// Event is delivered to Options.Trace around each layer run by RunLayers.
type Event struct {
	Kind   EventKind
	Layer  int
	Ops    int
	Failed int
}

// Options configures a Pool.
type Options struct {
	// Workers bounds concurrent operations. <= 0 means runtime.NumCPU().
	Workers int
	FS      types.FS
	Hasher  hashutil.Hasher
	// Trace, if set, is called synchronously from RunLayers.
	Trace func(Event)
}

// Pool executes Ops with bounded parallelism. The bound is shared by every
// batch submitted to the pool.
type Pool struct {
	workers int
	fs      types.FS
	hasher  hashutil.Hasher
	trace   func(Event)
	sem     chan struct{}
}

// New creates a pool.
func New(opts Options) *Pool {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = filesystem.NewOS()
	}
	return &Pool{
		workers: workers,
		fs:      fsys,
		hasher:  opts.Hasher,
		trace:   opts.Trace,
		sem:     make(chan struct{}, workers),
	}
}

// Workers returns the concurrency bound.
func (p *Pool) Workers() int {
	return p.workers
}

// Handle tracks a submitted batch.
type Handle struct {
	results []Result
	done    chan struct{}
}

// Wait blocks until every operation of the batch has finished and returns
// the results in batch order.
func (h *Handle) Wait() []Result {
	<-h.done
	return h.results
}

// Submit dispatches batch and returns immediately. Operations still waiting
// for a worker when ctx is cancelled are not started and report
// ErrCancelled; operations already running finish.
func (p *Pool) Submit(ctx context.Context, batch []Op) *Handle {
	h := &Handle{
		results: make([]Result, len(batch)),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(h.done)

		var wg sync.WaitGroup
		for i, op := range batch {
			if ctx.Err() != nil {
				h.results[i] = Result{Op: op, Err: cancelled(ctx, op)}
				continue
			}
			select {
			case <-ctx.Done():
				h.results[i] = Result{Op: op, Err: cancelled(ctx, op)}
				continue
			case p.sem <- struct{}{}:
			}

			wg.Add(1)
			go func(i int, op Op) {
				defer wg.Done()
				defer func() { <-p.sem }()
				h.results[i] = p.execute(op)
			}(i, op)
		}
		wg.Wait()
	}()

	return h
}

// Run submits batch and waits for it.
func (p *Pool) Run(ctx context.Context, batch []Op) []Result {
	return p.Submit(ctx, batch).Wait()
}

// LayersResult is the outcome of RunLayers.
type LayersResult struct {
	// Results holds one entry per layer that was started.
	Results [][]Result
	// FailedLayer is the index of the layer that had a failure, or -1.
	FailedLayer int
	// Cancelled is set when ctx stopped further layers from starting.
	Cancelled bool
	Err       error
}

// RunLayers runs layers strictly in order, each behind a barrier. It stops
// after the first layer with any failure, or before starting a layer once
// ctx is cancelled.
func (p *Pool) RunLayers(ctx context.Context, layers [][]Op) LayersResult {
	res := LayersResult{FailedLayer: -1}

	for i, layer := range layers {
		if err := ctx.Err(); err != nil {
			res.Cancelled = true
			res.Err = errors.Wrapf(err, errors.ErrCancelled, "cancelled before layer %d", i)
			return res
		}

		p.emit(Event{Kind: LayerStarted, Layer: i, Ops: len(layer)})
		results := p.Run(ctx, layer)
		res.Results = append(res.Results, results)

		failed := 0
		for _, r := range results {
			if !r.OK() {
				failed++
			}
		}
		p.emit(Event{Kind: LayerFinished, Layer: i, Ops: len(layer), Failed: failed})

		if failed > 0 {
			res.FailedLayer = i
			res.Err = Collect(results)
			res.Cancelled = errors.IsErrorCode(res.Err, errors.ErrCancelled)
			return res
		}
	}
	return res
}

func (p *Pool) emit(ev Event) {
	if p.trace != nil {
		p.trace(ev)
	}
}

// Collect aggregates the failures in results into one error carrying every
// failing path, or returns nil. The code is shared by all failures when
// they agree, otherwise it is the code of the first failure.
func Collect(results []Result) error {
	var (
		errs  []error
		paths []string
		code  errors.ErrorCode
		mixed bool
	)
	for _, r := range results {
		if r.OK() {
			continue
		}
		errs = append(errs, r.Err)
		paths = append(paths, r.Op.Path)

		c := errors.GetErrorCode(r.Err)
		if code == "" {
			code = c
		} else if c != code {
			mixed = true
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if code == errors.ErrUnknown {
		code = errors.ErrInternal
	}
	msg := "operation failed"
	if len(errs) > 1 {
		msg = "operations failed"
	}
	err := errors.Wrapf(stderrors.Join(errs...), code, "%d %s", len(errs), msg).WithPaths(paths...)
	if mixed {
		err.WithDetail("mixed_codes", true)
	}
	return err
}

func cancelled(ctx context.Context, op Op) error {
	return errors.Wrapf(ctx.Err(), errors.ErrCancelled, "%s not started", op).WithPaths(op.Path)
}

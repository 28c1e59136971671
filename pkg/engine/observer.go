package engine

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// StateChange is delivered on every state transition.
type StateChange struct {
	TransactionID string
	Kind          Kind
	Target        string
	From          State
	To            State
}

// CacheStats is delivered once per transaction after live files were
// classified against the hash cache.
type CacheStats struct {
	TransactionID string
	Hits          int
	Misses        int
}

// Observer receives engine events. Calls happen on a dispatcher goroutine,
// never on the transaction's own path.
type Observer interface {
	StateChanged(StateChange)
	FileProcessed(FileOutcome)
	CacheChecked(CacheStats)
}

// DefaultObserverBuffer is the dispatcher queue length when none is configured.
const DefaultObserverBuffer = 256

// dispatcher delivers events to an Observer asynchronously. When the queue
// is full the event is dropped; observer panics are recovered.
type dispatcher struct {
	observer Observer
	logger   zerolog.Logger
	events   chan func(Observer)
	done     chan struct{}
	dropped  atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func newDispatcher(o Observer, buffer int, logger zerolog.Logger) *dispatcher {
	if buffer <= 0 {
		buffer = DefaultObserverBuffer
	}
	d := &dispatcher{
		observer: o,
		logger:   logger,
		events:   make(chan func(Observer), buffer),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	for ev := range d.events {
		d.deliver(ev)
	}
}

func (d *dispatcher) deliver(ev func(Observer)) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn().Interface("panic", r).Msg("Observer panicked")
		}
	}()
	ev(d.observer)
}

func (d *dispatcher) send(ev func(Observer)) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
	}
}

// close stops accepting events and waits for queued ones to be delivered.
func (d *dispatcher) close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()
	<-d.done
}

func (d *dispatcher) droppedCount() int64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// LogObserver writes engine events to a zerolog logger.
type LogObserver struct {
	logger zerolog.Logger
}

// NewLogObserver returns an observer that logs every event.
func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (l *LogObserver) StateChanged(c StateChange) {
	l.logger.Debug().
		Str("tx", c.TransactionID).
		Str("kind", string(c.Kind)).
		Str("target", c.Target).
		Str("from", string(c.From)).
		Str("to", string(c.To)).
		Msg("State changed")
}

func (l *LogObserver) FileProcessed(o FileOutcome) {
	ev := l.logger.Debug()
	if o.Err != nil {
		ev = l.logger.Warn().Err(o.Err)
	}
	ev.Str("tx", o.TransactionID).
		Str("path", o.Path).
		Str("action", string(o.Action)).
		Int("layer", o.Layer).
		Msg("File processed")
}

func (l *LogObserver) CacheChecked(s CacheStats) {
	l.logger.Debug().
		Str("tx", s.TransactionID).
		Int("hits", s.Hits).
		Int("misses", s.Misses).
		Msg("Hash cache checked")
}

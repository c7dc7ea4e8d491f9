package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering.
//
// With DropIfFull set, events that find the buffer full are counted and
// discarded, except event types listed in MustDeliver, which wait for room
// like in blocking mode.
type Config struct {
	Enabled     bool
	BufferSize  int
	DropIfFull  bool
	MustDeliver []string

	// Logger receives drop and sink-panic warnings. Defaults to slog.Default.
	Logger *slog.Logger
	// Now stamps events emitted without a Timestamp. Defaults to time.Now.
	Now func() time.Time
}

// dropLogEvery throttles the drop warning after the first one.
const dropLogEvery = 100

// Dispatcher relays audit events to a sink on a single goroutine, in order.
type Dispatcher struct {
	sink        Sink
	logger      *slog.Logger
	now         func() time.Time
	dropIfFull  bool
	mustDeliver map[string]struct{}

	// mu guards closed so that no Emit sends on events after Close closes it.
	mu      sync.RWMutex
	closed  bool
	events  chan Event
	stopped chan struct{}

	dropped atomic.Uint64
}

// NewDispatcher starts the relay goroutine. It returns nil when cfg is
// disabled; every method is safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	d := &Dispatcher{
		sink:        sink,
		logger:      cfg.Logger,
		now:         cfg.Now,
		dropIfFull:  cfg.DropIfFull,
		mustDeliver: make(map[string]struct{}, len(cfg.MustDeliver)),
		events:      make(chan Event, cfg.BufferSize),
		stopped:     make(chan struct{}),
	}
	for _, t := range cfg.MustDeliver {
		d.mustDeliver[t] = struct{}{}
	}

	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for event := range d.events {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("audit.sink.panic", "event", event.EventType, "panic", r)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. In blocking mode it waits for buffer room until ctx is
// done. Events emitted after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		if _, critical := d.mustDeliver[event.EventType]; !critical {
			select {
			case d.events <- event:
			default:
				d.drop(event)
			}
			return
		}
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
		d.drop(event)
	}
}

func (d *Dispatcher) drop(event Event) {
	n := d.dropped.Add(1)
	if n == 1 || n%dropLogEvery == 0 {
		d.logger.Warn("audit.dropped", "event", event.EventType, "dropped_total", n)
	}
}

// Close stops accepting events, delivers everything already queued and
// waits for the sink to finish. It is idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.stopped
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()
	<-d.stopped
}

// Dropped reports events discarded because the buffer was full or the
// emitting context ended first.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

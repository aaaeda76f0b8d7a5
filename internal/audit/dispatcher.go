package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls how recovery audit events are queued. BufferSize bounds the
// queue between the request path and the sink. With DropIfFull set, a full
// queue discards the event and calls OnDrop synchronously; otherwise Emit
// waits for room or for the caller's context.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	OnDrop     func(Event)
}

// Dispatcher moves recovery audit events (initiations, issued codes,
// validations and throttle hits) off the request path. A single goroutine
// delivers queued events to the sink in order; Close flushes whatever is
// still queued before returning.
//
// A nil *Dispatcher is valid and discards every event.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	now       func() time.Time
	queue     chan Event
	stop      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher delivering to sink, or returns nil when
// auditing is disabled. A nil sink discards events.
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

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		now:   time.Now,
		queue: make(chan Event, cfg.BufferSize),
		stop:  make(chan struct{}),
	}

	d.wg.Add(1)
	go d.deliver()

	return d
}

func (d *Dispatcher) deliver() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit queues event for delivery. Events without a timestamp are stamped
// with the time they were queued. Emit after Close is a no-op.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now().UTC()
	}

	if !d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-ctx.Done():
		case <-d.stop:
		}
		return
	}

	select {
	case d.queue <- event:
	case <-d.stop:
	default:
		d.dropped.Add(1)
		if d.cfg.OnDrop != nil {
			d.cfg.OnDrop(event)
		}
	}
}

// Close stops accepting events and waits until the queue is flushed to the
// sink. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Pending reports the number of queued events not yet delivered.
func (d *Dispatcher) Pending() int {
	if d == nil {
		return 0
	}
	return len(d.queue)
}

// Dropped reports how many events a full queue has discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

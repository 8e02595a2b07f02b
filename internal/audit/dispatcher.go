package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the buffer is full instead of making
	// the request wait for the sink.
	DropIfFull bool
}

// Dispatcher hands audit events to a sink on a single background goroutine,
// so sinks see events in emission order and never run on a request path.
// A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	// mu guards closed and the close of queue; Emit holds it shared while
	// sending so Close cannot close queue under a pending send.
	mu     sync.RWMutex
	closed bool
	queue  chan Event
	exited chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is
// disabled. Close must be called to stop the goroutine.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		exited:     make(chan struct{}),
	}
	go d.deliverAll()
	return d
}

func (d *Dispatcher) deliverAll() {
	defer close(d.exited)
	for event := range d.queue {
		if d.deliver(event) {
			d.delivered.Add(1)
		} else {
			d.dropped.Add(1)
		}
	}
}

// deliver reports false when the sink panicked; one bad event must not stop
// delivery of the rest.
func (d *Dispatcher) deliver(event Event) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	d.sink.Emit(context.Background(), event)
	return true
}

// Emit queues event. With DropIfFull a full buffer drops the event at once;
// otherwise Emit waits for space until ctx is done and drops it then. Every
// discarded event is counted by Dropped. Events emitted after Close are
// ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops accepting events, delivers what is buffered and waits for the
// delivery goroutine to exit. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	<-d.exited
}

// Dropped returns the number of events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered returns the number of events the sink accepted.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}

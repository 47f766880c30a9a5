package watcher

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// debounceInputBuffer is how many events Add may queue ahead of the
	// debouncer loop before it blocks.
	debounceInputBuffer = 256

	// MaxBatchEvents caps a single batch; reaching it hands the batch over
	// without waiting for the settle period.
	MaxBatchEvents = 4096
)

// debounceRequest is either an event or a flush marker. Both travel on one
// channel so a flush is ordered after every Add that returned before it.
type debounceRequest struct {
	event Event
	flush chan struct{}
}

// DebouncerImpl implements the Debouncer interface. Events accumulate in
// arrival order until no new event has arrived for delay, or until maxDelay
// has passed since the first pending event; the whole set is then handed over
// as one batch. A single goroutine owns the pending batch and the timer.
// While it waits for room in the output queue it stops reading input, so Add
// blocks and the event source is throttled.
type DebouncerImpl struct {
	delay     time.Duration
	maxDelay  time.Duration
	input     chan debounceRequest
	eventChan chan []Event
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	// pendingLen mirrors len(pending) for observers outside the loop
	pendingLen atomic.Int64
}

// NewDebouncer creates a new debouncer and starts its loop
func NewDebouncer(delay, maxDelay time.Duration, queueCapacity int) *DebouncerImpl {
	ctx, cancel := context.WithCancel(context.Background())

	if maxDelay < delay {
		maxDelay = delay
	}
	if queueCapacity < 0 {
		queueCapacity = 0
	}

	d := &DebouncerImpl{
		delay:     delay,
		maxDelay:  maxDelay,
		input:     make(chan debounceRequest, debounceInputBuffer),
		eventChan: make(chan []Event, queueCapacity),
		ctx:       ctx,
		cancel:    cancel,
	}

	d.wg.Add(1)
	go d.run()
	return d
}

// Add adds an event to be debounced. It blocks while the input queue is
// full and returns immediately once the debouncer is closed.
func (d *DebouncerImpl) Add(event Event) {
	if d.ctx.Err() != nil {
		return
	}
	select {
	case d.input <- debounceRequest{event: event}:
	case <-d.ctx.Done():
	}
}

// Events returns the debounced batches channel
func (d *DebouncerImpl) Events() <-chan []Event {
	return d.eventChan
}

// Flush hands pending events over immediately and waits until the batch has
// been queued, blocking like a timer-driven hand-over would.
func (d *DebouncerImpl) Flush() {
	if d.ctx.Err() != nil {
		return
	}

	done := make(chan struct{})
	select {
	case d.input <- debounceRequest{flush: done}:
	case <-d.ctx.Done():
		return
	}

	select {
	case <-done:
	case <-d.ctx.Done():
	}
}

// Pending returns the number of events waiting in the current batch
func (d *DebouncerImpl) Pending() int {
	return int(d.pendingLen.Load())
}

// run owns the pending batch. The settle timer is re-armed on every event
// to the earlier of delay and the batch deadline.
func (d *DebouncerImpl) run() {
	defer d.wg.Done()
	defer close(d.eventChan)

	settle := time.NewTimer(d.delay)
	settle.Stop()
	defer settle.Stop()

	var (
		pending  []Event
		deadline time.Time
	)

	handOver := func() {
		settle.Stop()
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		d.pendingLen.Store(0)

		select {
		case d.eventChan <- batch:
		case <-d.ctx.Done():
		}
	}

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-settle.C:
			handOver()

		case req := <-d.input:
			if req.flush != nil {
				handOver()
				close(req.flush)
				continue
			}

			if n := len(pending); n == 0 || !sameEvent(pending[n-1], req.event) {
				if n == 0 {
					deadline = time.Now().Add(d.maxDelay)
				}
				pending = append(pending, req.event)
				d.pendingLen.Store(int64(len(pending)))
			}

			if len(pending) >= MaxBatchEvents {
				handOver()
				continue
			}
			settle.Reset(max(min(d.delay, time.Until(deadline)), 0))
		}
	}
}

// Close stops the debouncer, drops pending events and closes the batch
// channel. Batches already queued stay readable. It is safe to call more
// than once.
func (d *DebouncerImpl) Close() {
	d.closeOnce.Do(func() {
		d.cancel()
		d.wg.Wait()
	})
}

func sameEvent(a, b Event) bool {
	return a.Kind == b.Kind && a.Sub == b.Sub && slices.Equal(a.Paths, b.Paths)
}

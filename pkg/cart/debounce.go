package cart

import (
	"sync"
	"time"
)

// flushFunc receives the final queued quantity for one item after a
// quiescence window.
type flushFunc func(itemID string, quantity int)

// debouncer is the pending quantity update queue: the latest desired
// quantity per item id, flushed as one call per item after the interval has
// passed with no further writes. Earlier intermediate values are discarded,
// never sent.
type debouncer struct {
	interval time.Duration
	flush    flushFunc

	mu      sync.Mutex
	pending map[string]int
	timer   *time.Timer
	closed  bool
}

func newDebouncer(interval time.Duration, flush flushFunc) *debouncer {
	return &debouncer{
		interval: interval,
		flush:    flush,
		pending:  make(map[string]int),
	}
}

// put records the latest desired quantity for itemID and restarts the
// quiescence window. Repeated calls within the window coalesce to the last
// value.
func (d *debouncer) put(itemID string, quantity int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.pending[itemID] = quantity

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

// cancel drops the queued value for itemID, if any. Used when the line is
// removed so a stale quantity write cannot resurrect it.
func (d *debouncer) cancel(itemID string) {
	d.mu.Lock()
	delete(d.pending, itemID)
	d.mu.Unlock()
}

// reset drops every queued value without flushing.
func (d *debouncer) reset() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[string]int)
	d.mu.Unlock()
}

// Flush fires the queue immediately. Used on shutdown and in tests.
func (d *debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.fire()
}

// Close drops any queued values and stops accepting new ones.
func (d *debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[string]int)
	d.mu.Unlock()
}

// fire drains the queue and invokes flush once per item with its final
// value. The callback runs outside the lock so it may call back into the
// debouncer.
func (d *debouncer) fire() {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := d.pending
	d.pending = make(map[string]int)
	d.mu.Unlock()

	for itemID, quantity := range batch {
		d.flush(itemID, quantity)
	}
}

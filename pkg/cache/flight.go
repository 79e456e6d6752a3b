package cache

import "sync"

// call is one in-flight request. Late arrivals block on done and read the
// settled outcome.
type call struct {
	done  chan struct{}
	entry *Entry
	err   error
}

// Flight is the pending-request registry: at most one producer runs per key
// at any time, and every concurrent caller for that key receives the same
// outcome. Registrations are removed when the call settles, success or
// failure, so a dead call never starves later requests.
type Flight struct {
	mu      sync.Mutex
	pending map[string]*call
}

// NewFlight creates an empty registry.
func NewFlight() *Flight {
	return &Flight{
		pending: make(map[string]*call),
	}
}

// Do runs fn for key unless an identical call is already in flight, in which
// case it waits for that call and returns its outcome. fn's result is handed
// to every waiter verbatim; it is never cached here.
func (f *Flight) Do(key string, fn func() (*Entry, error)) (*Entry, error) {
	f.mu.Lock()
	if c, ok := f.pending[key]; ok {
		f.mu.Unlock()
		InflightShared.Inc()
		<-c.done
		return c.entry, c.err
	}

	c := &call{done: make(chan struct{})}
	f.pending[key] = c
	f.mu.Unlock()

	c.entry, c.err = fn()

	// Deregister before releasing waiters so a follow-up caller issues a
	// fresh request instead of attaching to a settled one.
	f.mu.Lock()
	delete(f.pending, key)
	f.mu.Unlock()

	close(c.done)
	return c.entry, c.err
}

// Pending returns the number of in-flight calls.
func (f *Flight) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Forget drops the registration for key without waiting for it to settle.
// The in-flight call, if any, still completes for its existing waiters.
func (f *Flight) Forget(key string) {
	f.mu.Lock()
	delete(f.pending, key)
	f.mu.Unlock()
}

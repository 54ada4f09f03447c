package session

import (
	"sync"
	"time"
)

// DefaultDebounce is the settling period for field edits.
const DefaultDebounce = 400 * time.Millisecond

// Debouncer coalesces calls per key and runs only the latest one after a quiet
// period.
type Debouncer[K comparable] struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[K]*pendingCall
}

type pendingCall struct {
	timer *time.Timer
	fn    func()
}

// NewDebouncer creates a Debouncer. A non-positive delay selects DefaultDebounce.
func NewDebouncer[K comparable](delay time.Duration) *Debouncer[K] {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer[K]{
		delay:   delay,
		pending: make(map[K]*pendingCall),
	}
}

// Delay returns the settling period.
func (d *Debouncer[K]) Delay() time.Duration {
	return d.delay
}

// Schedule replaces any pending call for key with fn and restarts the timer.
func (d *Debouncer[K]) Schedule(key K, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
	}
	p := &pendingCall{fn: fn}
	p.timer = time.AfterFunc(d.delay, func() { d.fire(key, p) })
	d.pending[key] = p
}

func (d *Debouncer[K]) fire(key K, p *pendingCall) {
	d.mu.Lock()
	if d.pending[key] != p {
		// Replaced, flushed or cancelled since the timer was armed.
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	p.fn()
}

// Flush runs the pending call for key now, on the caller's goroutine. It
// reports whether there was one.
func (d *Debouncer[K]) Flush(key K) bool {
	d.mu.Lock()
	p, ok := d.pending[key]
	if ok {
		p.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()

	if ok {
		p.fn()
	}
	return ok
}

// Cancel drops the pending call for key without running it.
func (d *Debouncer[K]) Cancel(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pending[key]
	if ok {
		p.timer.Stop()
		delete(d.pending, key)
	}
	return ok
}

// Pending reports whether a call is waiting for key.
func (d *Debouncer[K]) Pending(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// FlushAll runs every pending call now.
func (d *Debouncer[K]) FlushAll() {
	d.mu.Lock()
	calls := make([]*pendingCall, 0, len(d.pending))
	for k, p := range d.pending {
		p.timer.Stop()
		calls = append(calls, p)
		delete(d.pending, k)
	}
	d.mu.Unlock()

	for _, p := range calls {
		p.fn()
	}
}

// Stop cancels every pending call.
func (d *Debouncer[K]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, k)
	}
}

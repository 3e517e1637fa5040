// Package debounce coalesces bursts of calls into one trailing call per key.
package debounce

import (
	"sync"
	"time"
)

// Keyed debounces calls per key. After Call(k, v), fn(k, v) runs once delay
// has passed without another Call for the same k; intermediate values are
// dropped.
type Keyed[K comparable, V any] struct {
	delay time.Duration
	fn    func(K, V)

	mu      sync.Mutex
	pending map[K]*entry[V]
	stopped bool
}

type entry[V any] struct {
	timer *time.Timer
	value V
	gen   uint64
}

func New[K comparable, V any](delay time.Duration, fn func(K, V)) *Keyed[K, V] {
	return &Keyed[K, V]{
		delay:   delay,
		fn:      fn,
		pending: make(map[K]*entry[V]),
	}
}

// Call schedules fn(key, value), replacing any pending value for key.
// Calls after Stop are ignored.
func (d *Keyed[K, V]) Call(key K, value V) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	e, ok := d.pending[key]
	if !ok {
		e = &entry[V]{}
		d.pending[key] = e
	} else {
		e.timer.Stop()
	}
	e.value = value
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(d.delay, func() { d.fire(key, gen) })
}

// fire runs the callback unless the entry was rescheduled or flushed since
// its timer was armed.
func (d *Keyed[K, V]) fire(key K, gen uint64) {
	d.mu.Lock()
	e, ok := d.pending[key]
	if !ok || e.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	d.fn(key, e.value)
}

// Pending reports how many keys are waiting.
func (d *Keyed[K, V]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// FlushKey runs key's pending callback now, if there is one.
func (d *Keyed[K, V]) FlushKey(key K) {
	d.mu.Lock()
	e, ok := d.pending[key]
	if ok {
		e.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()

	if ok {
		d.fn(key, e.value)
	}
}

// Cancel drops key's pending callback.
func (d *Keyed[K, V]) Cancel(key K) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.pending[key]; ok {
		e.timer.Stop()
		delete(d.pending, key)
	}
}

// Flush runs every pending callback now, on the caller's goroutine.
func (d *Keyed[K, V]) Flush() {
	d.mu.Lock()
	due := d.pending
	d.pending = make(map[K]*entry[V])
	for _, e := range due {
		e.timer.Stop()
	}
	d.mu.Unlock()

	for k, e := range due {
		d.fn(k, e.value)
	}
}

// Stop drops every pending callback and ignores later calls.
func (d *Keyed[K, V]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for k, e := range d.pending {
		e.timer.Stop()
		delete(d.pending, k)
	}
}

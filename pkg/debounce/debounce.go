// Package debounce coalesces bursts of calls per key into a single call made
// once the key has been quiet for a fixed delay.
package debounce

import (
	"sync"
	"time"
)

type pending struct {
	timer *time.Timer
	fn    func()
}

// Debouncer delays calls per key. The zero value is not usable; use New.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*pending
	stopped bool
}

// New returns a Debouncer that waits delay after the last Trigger for a key.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*pending),
	}
}

// Trigger schedules fn for key, replacing any call still waiting for that key
// and restarting its delay. After Stop, fn runs immediately.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		fn()
		return
	}
	if p, ok := d.pending[key]; ok {
		p.fn = fn
		p.timer.Reset(d.delay)
		d.mu.Unlock()
		return
	}
	p := &pending{fn: fn}
	p.timer = time.AfterFunc(d.delay, func() { d.fire(key, p) })
	d.pending[key] = p
	d.mu.Unlock()
}

func (d *Debouncer) fire(key string, p *pending) {
	d.mu.Lock()
	if d.pending[key] != p {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	fn := p.fn
	d.mu.Unlock()
	fn()
}

// Pending returns the number of keys waiting to fire.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush runs every waiting call now.
func (d *Debouncer) Flush() {
	for _, fn := range d.drain() {
		fn()
	}
}

// Stop flushes waiting calls. Later triggers run synchronously.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.Flush()
}

func (d *Debouncer) drain() []func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	fns := make([]func(), 0, len(d.pending))
	for key, p := range d.pending {
		p.timer.Stop()
		fns = append(fns, p.fn)
		delete(d.pending, key)
	}
	return fns
}

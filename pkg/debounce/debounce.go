// Package debounce provides a timer/token debouncer: each trigger cancels
// any pending timer and starts a new one, so only the final trigger in a
// burst fires once the quiescence window elapses.
package debounce

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers into a single delayed call.
// Safe for concurrent use. The callback runs on a timer goroutine with no
// internal lock held.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	timer   *time.Timer
	token   uint64
	stopped bool
}

func New(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Trigger schedules fn to run after the quiescence window. A trigger
// arriving before the window elapses supersedes the pending one: its fn
// will never run.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.token++
	token := d.token
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		stale := d.stopped || token != d.token
		d.mu.Unlock()
		if !stale {
			fn()
		}
	})
}

// Stop cancels any pending trigger and rejects future ones.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

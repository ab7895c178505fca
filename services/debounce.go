package services

import (
	"sync"
	"time"
)

// debouncer coalesces rapid Signal calls into a single deferred fire, and
// enforces a hard expiry measured from the most recent Signal. Both timers
// are reset by every Signal; Stop cancels both exactly, so neither callback
// runs after a logical stop.
//
// This is the shared dual-timer primitive behind the typing indicator
// lifecycle: onFire performs the debounced action, onExpire is the automatic
// stop when signals cease.
type debouncer struct {
	delay  time.Duration
	expiry time.Duration

	onFire   func()
	onExpire func()

	mu       sync.Mutex
	open     bool // a logical session is in progress
	delayTm  *time.Timer
	expiryTm *time.Timer
}

func newDebouncer(delay, expiry time.Duration, onFire, onExpire func()) *debouncer {
	return &debouncer{
		delay:    delay,
		expiry:   expiry,
		onFire:   onFire,
		onExpire: onExpire,
	}
}

// Signal opens a session if none is in progress and restarts both timers.
func (d *debouncer) Signal() {
	d.mu.Lock()
	d.cancelTimersLocked()
	d.open = true
	d.delayTm = time.AfterFunc(d.delay, d.fire)
	if d.expiry > 0 {
		d.expiryTm = time.AfterFunc(d.expiry, d.expire)
	}
	d.mu.Unlock()
}

// Stop cancels both timers and closes the session. It reports whether a
// session was actually open, and is a no-op when called again.
func (d *debouncer) Stop() bool {
	d.mu.Lock()
	wasOpen := d.open
	d.open = false
	d.cancelTimersLocked()
	d.mu.Unlock()
	return wasOpen
}

func (d *debouncer) fire() {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	d.onFire()
}

func (d *debouncer) expire() {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return
	}
	d.open = false
	d.cancelTimersLocked()
	d.mu.Unlock()
	d.onExpire()
}

func (d *debouncer) cancelTimersLocked() {
	if d.delayTm != nil {
		d.delayTm.Stop()
		d.delayTm = nil
	}
	if d.expiryTm != nil {
		d.expiryTm.Stop()
		d.expiryTm = nil
	}
}

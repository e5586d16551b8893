package tokenutil

import (
	"sync"
	"time"
)

// DefaultIdleWindow is how long a principal may stay inactive before the
// monitor fires.
const DefaultIdleWindow = 15 * time.Minute

// ActivityMonitor invokes a callback after a configurable window with no
// recorded activity. The transport layer calls Touch on every authenticated
// request; the callback typically forces a sign-out. Stop must be called when
// the owning session ends so the timer does not leak.
type ActivityMonitor struct {
	mu      sync.Mutex
	window  time.Duration
	timer   *time.Timer
	onIdle  func()
	stopped bool
}

// NewActivityMonitor starts a monitor that calls onIdle after window of
// inactivity. A non-positive window falls back to DefaultIdleWindow.
func NewActivityMonitor(window time.Duration, onIdle func()) *ActivityMonitor {
	if window <= 0 {
		window = DefaultIdleWindow
	}
	m := &ActivityMonitor{
		window: window,
		onIdle: onIdle,
	}
	m.timer = time.AfterFunc(window, m.fire)
	return m
}

// Touch records activity, pushing the idle deadline out by the full window.
// Touching a stopped monitor is a no-op.
func (m *ActivityMonitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.timer.Reset(m.window)
}

// Stop tears the monitor down. The callback will not fire after Stop returns,
// unless it was already running.
func (m *ActivityMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	m.timer.Stop()
}

func (m *ActivityMonitor) fire() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cb := m.onIdle
	m.mu.Unlock()

	if cb != nil {
		cb()
	}
}

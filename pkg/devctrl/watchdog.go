package devctrl

import (
	"sync"
	"time"
)

// Watchdog fires onExpire once when no Reset arrives within the timeout.
// A fired watchdog stays quiet until the next Reset re-arms it.
type Watchdog struct {
	mu       sync.Mutex
	timeout  time.Duration
	timer    *time.Timer
	onExpire func()
}

func NewWatchdog(timeout time.Duration, onExpire func()) *Watchdog {
	return &Watchdog{timeout: timeout, onExpire: onExpire}
}

// Reset re-arms the expiry timer from now.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.timeout, w.onExpire)
}

// Stop disarms the watchdog until the next Reset.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

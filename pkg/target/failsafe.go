package target

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultFailsafeDuration is the bounded duration an update is allowed to
// sit idle before the failsafe timer aborts it (spec §4.5: "default
// 1,200,000 ms = 20 minutes").
const DefaultFailsafeDuration = 20 * time.Minute

// failsafeTimer is a single-shot watchdog, restarted on every offer accept
// (spec §4.5). It is built on clock.Clock rather than the bare time package
// so tests can advance a mock clock instead of sleeping real wall time
// (spec §8 "Failsafe fires": "advance virtual clock by timer duration").
type failsafeTimer struct {
	mu       sync.Mutex
	clock    clock.Clock
	duration time.Duration
	timer    *clock.Timer
	onFire   func()
}

func newFailsafeTimer(c clock.Clock, duration time.Duration, onFire func()) *failsafeTimer {
	return &failsafeTimer{clock: c, duration: duration, onFire: onFire}
}

// Start (re)starts the timer, canceling any pending fire (spec §4.5:
// "Single shot, restarted on every offer-accept").
func (f *failsafeTimer) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = f.clock.AfterFunc(f.duration, f.onFire)
}

// Stop cancels a pending fire without invoking onFire.
func (f *failsafeTimer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

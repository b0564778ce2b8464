package future

import (
	"sync"
	"time"
)

// Timer is a future that becomes ready once a duration has passed. The
// countdown starts when the timer is created, not when it is first polled.
type Timer struct {
	mu      sync.Mutex
	firedAt time.Time
	fired   bool
	waker   Waker
	timer   *time.Timer
}

// NewTimer starts a countdown of d.
func NewTimer(d time.Duration) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(d, t.fire)

	return t
}

func (t *Timer) fire() {
	t.mu.Lock()
	t.firedAt = time.Now()
	t.fired = true
	w := t.waker
	t.waker = nil
	t.mu.Unlock()

	if w != nil {
		w.Wake()
	}
}

// Poll returns the time the timer fired, or registers the caller's waker.
// Polling a fired timer again returns the same instant.
func (t *Timer) Poll(cx *Context) Poll[time.Time] {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fired {
		return Ready(t.firedAt)
	}

	t.waker = cx.Waker()

	return Pending[time.Time]()
}

// Stop cancels the countdown. It reports whether the timer was stopped before
// firing. A stopped timer never becomes ready.
func (t *Timer) Stop() bool {
	return t.timer.Stop()
}

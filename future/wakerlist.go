package future

import "sync"

// WakerList is a notification broadcaster owned by whoever holds a piece of
// shared state. Suspended readers register their wakers; the owner wakes all
// of them when the state changes.
//
// WakeAll drains the list. A reader that is still not satisfied after being
// woken registers again on its next pending poll.
type WakerList struct {
	mu     sync.Mutex
	wakers []Waker
}

// NewWakerList creates an empty WakerList.
func NewWakerList() *WakerList {
	return &WakerList{}
}

// Register adds w to the list.
func (l *WakerList) Register(w Waker) {
	if w == nil {
		return
	}

	l.mu.Lock()
	l.wakers = append(l.wakers, w)
	l.mu.Unlock()
}

// WakeAll wakes and removes every registered waker and returns how many were
// woken. Wakers run after the lock is released.
func (l *WakerList) WakeAll() int {
	l.mu.Lock()
	wakers := l.wakers
	l.wakers = nil
	l.mu.Unlock()

	for _, w := range wakers {
		w.Wake()
	}

	return len(wakers)
}

// Len returns the number of registered wakers.
func (l *WakerList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.wakers)
}

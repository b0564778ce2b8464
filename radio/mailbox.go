package radio

import "sync"

// mailbox is an unbounded single-consumer queue that can take part in a
// select. ready fires whenever the mailbox may hold an item; take may still
// find it empty.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{signal: make(chan struct{}, 1)}
}

func (m *mailbox[T]) put(v T) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()

	m.notify()
}

func (m *mailbox[T]) take() (T, bool) {
	m.mu.Lock()

	if len(m.items) == 0 {
		m.mu.Unlock()

		var zero T

		return zero, false
	}

	v := m.items[0]
	m.items = m.items[1:]
	more := len(m.items) > 0
	m.mu.Unlock()

	if more {
		m.notify()
	}

	return v, true
}

func (m *mailbox[T]) ready() <-chan struct{} {
	return m.signal
}

func (m *mailbox[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.items)
}

func (m *mailbox[T]) notify() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

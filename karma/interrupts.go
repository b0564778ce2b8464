package karma

import "sync"

// Interrupts buffers the responses a device delivers to the CPU side.
// Responses are kept in delivery order. A response stays buffered until a
// request that matches it takes it.
type Interrupts[O any] struct {
	mu    sync.Mutex
	items []O

	limit     int
	evictable func(O) bool
	evicted   uint64
}

// NewInterrupts creates an empty, unbounded buffer.
func NewInterrupts[O any]() *Interrupts[O] {
	return &Interrupts[O]{}
}

// NewBoundedInterrupts creates a buffer that holds at most limit responses
// for which evictable returns true. Delivering one more of them evicts the
// oldest one. Other responses are never evicted. A limit of zero means
// unbounded.
func NewBoundedInterrupts[O any](limit int, evictable func(O) bool) *Interrupts[O] {
	if limit < 0 {
		panic("karma: interrupt limit must not be negative")
	}

	if limit > 0 && evictable == nil {
		panic("karma: a bounded interrupt buffer needs an eviction filter")
	}

	return &Interrupts[O]{limit: limit, evictable: evictable}
}

// Deliver appends a response. If that pushes the buffer over its limit, the
// oldest evictable response is removed and returned.
func (b *Interrupts[O]) Deliver(out O) (evicted O, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit > 0 && b.evictable(out) && b.countEvictable() >= b.limit {
		evicted, ok = b.removeFirst(b.evictable)
		if ok {
			b.evicted++
		}
	}

	b.items = append(b.items, out)

	return evicted, ok
}

func (b *Interrupts[O]) countEvictable() int {
	n := 0

	for _, out := range b.items {
		if b.evictable(out) {
			n++
		}
	}

	return n
}

// TakeFirst removes and returns the oldest response for which match returns
// true.
func (b *Interrupts[O]) TakeFirst(match func(O) bool) (O, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.removeFirst(match)
}

func (b *Interrupts[O]) removeFirst(match func(O) bool) (O, bool) {
	for i, out := range b.items {
		if !match(out) {
			continue
		}

		b.items = append(b.items[:i:i], b.items[i+1:]...)

		return out, true
	}

	var zero O

	return zero, false
}

// Len returns the number of buffered responses.
func (b *Interrupts[O]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.items)
}

// Evicted returns how many responses were evicted to respect the limit.
func (b *Interrupts[O]) Evicted() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.evicted
}

// Snapshot returns a copy of the buffered responses.
func (b *Interrupts[O]) Snapshot() []O {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]O(nil), b.items...)
}

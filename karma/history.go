package karma

import (
	"fmt"
	"sync"
	"time"

	"github.com/sarchlab/karma/hooking"
)

// HookPosHistoryAppend marks when an event is appended to a history.
var HookPosHistoryAppend = &hooking.HookPos{Name: "History Append"}

// HookPosHistoryEvict marks when the oldest event is dropped from a full
// history.
var HookPosHistoryEvict = &hooking.HookPos{Name: "History Evict"}

// EventKind tells whether a history event is a command or a response.
type EventKind int

// The kinds of history events.
const (
	EventInput EventKind = iota
	EventOutput
)

func (k EventKind) String() string {
	switch k {
	case EventInput:
		return "input"
	case EventOutput:
		return "output"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one entry of a history. Exactly one of Input and Output is
// meaningful, as told by Kind.
type Event[I, O any] struct {
	Seq    uint64
	Time   time.Time
	Kind   EventKind
	Input  I
	Output O
}

// Msg returns the message carried by the event.
func (e Event[I, O]) Msg() any {
	if e.Kind == EventInput {
		return e.Input
	}

	return e.Output
}

func (e Event[I, O]) String() string {
	return fmt.Sprintf("#%d %s %v", e.Seq, e.Kind, e.Msg())
}

// History is an append-only log of events shared by every request issued
// through one Karma. With a positive capacity it keeps only the newest
// events.
type History[I, O any] struct {
	*hooking.HookableBase

	mu       sync.Mutex
	capacity int
	events   []Event[I, O]
	nextSeq  uint64
	evicted  uint64
}

// NewHistory creates a history. A capacity of zero means unbounded.
func NewHistory[I, O any](capacity int) *History[I, O] {
	if capacity < 0 {
		panic("karma: history capacity must not be negative")
	}

	return &History[I, O]{
		HookableBase: hooking.NewHookableBase(),
		capacity:     capacity,
	}
}

// AppendInput logs a command.
func (h *History[I, O]) AppendInput(in I) Event[I, O] {
	return h.append(Event[I, O]{Kind: EventInput, Input: in})
}

// AppendOutput logs a response.
func (h *History[I, O]) AppendOutput(out O) Event[I, O] {
	return h.append(Event[I, O]{Kind: EventOutput, Output: out})
}

func (h *History[I, O]) append(e Event[I, O]) Event[I, O] {
	h.mu.Lock()

	h.nextSeq++
	e.Seq = h.nextSeq
	e.Time = time.Now()

	h.events = append(h.events, e)

	var evicted *Event[I, O]
	if h.capacity > 0 && len(h.events) > h.capacity {
		first := h.events[0]
		evicted = &first
		h.events = h.events[1:]
		h.evicted++
	}

	h.mu.Unlock()

	if h.NumHooks() > 0 {
		h.InvokeHook(hooking.HookCtx{
			Domain: h,
			Pos:    HookPosHistoryAppend,
			Item:   e,
		})

		if evicted != nil {
			h.InvokeHook(hooking.HookCtx{
				Domain: h,
				Pos:    HookPosHistoryEvict,
				Item:   *evicted,
			})
		}
	}

	return e
}

// Events returns a copy of the logged events, oldest first.
func (h *History[I, O]) Events() []Event[I, O] {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]Event[I, O](nil), h.events...)
}

// Len returns the number of events currently kept.
func (h *History[I, O]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.events)
}

// Capacity returns the capacity given at creation. Zero means unbounded.
func (h *History[I, O]) Capacity() int {
	return h.capacity
}

// Evicted returns how many events were dropped to respect the capacity.
func (h *History[I, O]) Evicted() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.evicted
}

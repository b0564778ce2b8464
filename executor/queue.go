package executor

import (
	"errors"
	"sync"
)

var (
	// ErrQueueFull is the panic value raised when a task is queued beyond the
	// run queue capacity. It indicates a mis-sized executor, not a transient
	// condition.
	ErrQueueFull = errors.New("executor: run queue is full")

	// ErrSpawnerClosed is the panic value raised when spawning on a closed
	// spawner.
	ErrSpawnerClosed = errors.New("executor: spawner is closed")
)

// runQueue is the bounded FIFO between spawners/wakers and the executor
// goroutine. Its sending side stays open while the spawner is open or any
// spawned task is still alive, mirroring how every live task holds a sender.
type runQueue struct {
	mu            sync.Mutex
	ch            chan *Task
	closed        bool
	spawnerClosed bool
	live          int
}

func newRunQueue(capacity int) *runQueue {
	return &runQueue{ch: make(chan *Task, capacity)}
}

// admit registers a new live task. It panics if the spawner is closed.
func (q *runQueue) admit() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.spawnerClosed {
		panic(ErrSpawnerClosed)
	}

	q.live++
}

func (q *runQueue) push(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	select {
	case q.ch <- t:
	default:
		panic(ErrQueueFull)
	}
}

// release marks one live task as finished.
func (q *runQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.live--
	q.closeIfDrained()
}

func (q *runQueue) closeSpawner() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.spawnerClosed = true
	q.closeIfDrained()
}

func (q *runQueue) closeIfDrained() {
	if q.closed || !q.spawnerClosed || q.live > 0 {
		return
	}

	q.closed = true
	close(q.ch)
}

func (q *runQueue) len() int {
	return len(q.ch)
}

func (q *runQueue) capacity() int {
	return cap(q.ch)
}

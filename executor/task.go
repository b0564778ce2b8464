package executor

import (
	"sync"
	"sync/atomic"

	"github.com/sarchlab/karma/future"
)

// Task is a spawned computation plus the handle used to resubmit it to the
// run queue. A Task is its own waker.
type Task struct {
	id   string
	name string
	exec *Executor

	mu  sync.Mutex
	fut future.Future[future.Unit]

	scheduled atomic.Bool
	done      atomic.Bool
	polls     atomic.Uint64
}

// ID returns the unique ID of the task.
func (t *Task) ID() string {
	return t.id
}

// Name returns the name given at spawn time, which may be empty.
func (t *Task) Name() string {
	return t.name
}

// Polls returns how many times the task has been polled.
func (t *Task) Polls() uint64 {
	return t.polls.Load()
}

// IsDone reports whether the task's computation has completed.
func (t *Task) IsDone() bool {
	return t.done.Load()
}

// Wake requeues the task. Waking a task that is already queued, finished, or
// owned by a stopped executor does nothing.
func (t *Task) Wake() {
	if t.done.Load() {
		return
	}

	if !t.scheduled.CompareAndSwap(false, true) {
		return
	}

	t.exec.stats.wakes.Add(1)
	t.exec.InvokeHook(hookCtx(t.exec, HookPosTaskWake, t))
	t.exec.queue.push(t)
}

// poll advances the computation once and reports whether it completed. The
// scheduled flag is cleared first so that a wake arriving during the poll
// queues the task again.
func (t *Task) poll() (completed bool) {
	t.scheduled.Store(false)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fut == nil {
		return false
	}

	t.polls.Add(1)

	if !t.fut.Poll(future.NewContext(t)).IsReady() {
		return false
	}

	t.fut = nil
	t.done.Store(true)

	return true
}

// TaskInfo is a snapshot of a live task.
type TaskInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Polls uint64 `json:"polls"`
}

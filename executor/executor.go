// Package executor provides a single-queue cooperative task scheduler.
//
// Tasks are futures. One goroutine, the one calling Run, takes tasks off a
// bounded FIFO run queue and polls them one at a time. A task that is still
// pending is kept aside until its waker puts it back in the queue; the poll
// itself never requeues a task.
package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/sarchlab/karma/future"
	"github.com/sarchlab/karma/hooking"
	"github.com/sarchlab/karma/idgen"
)

// MaxTasks is the default capacity of the run queue.
const MaxTasks = 10_000

var (
	// HookPosTaskSpawn marks when a task is spawned.
	HookPosTaskSpawn = &hooking.HookPos{Name: "Task Spawn"}

	// HookPosTaskWake marks when a task is put back in the run queue.
	HookPosTaskWake = &hooking.HookPos{Name: "Task Wake"}

	// HookPosBeforePoll marks right before a task is polled.
	HookPosBeforePoll = &hooking.HookPos{Name: "Before Poll"}

	// HookPosAfterPoll marks right after a task is polled. The hook detail is
	// a bool telling whether the task completed.
	HookPosAfterPoll = &hooking.HookPos{Name: "After Poll"}

	// HookPosTaskDone marks when a task completes.
	HookPosTaskDone = &hooking.HookPos{Name: "Task Done"}
)

// Stats are counters describing the executor's activity so far.
type Stats struct {
	Spawned   uint64 `json:"spawned"`
	Completed uint64 `json:"completed"`
	Polls     uint64 `json:"polls"`
	Wakes     uint64 `json:"wakes"`
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
	Paused    bool   `json:"paused"`
}

type counters struct {
	spawned   atomic.Uint64
	completed atomic.Uint64
	polls     atomic.Uint64
	wakes     atomic.Uint64
}

// Executor polls spawned tasks on a single goroutine.
type Executor struct {
	*hooking.HookableBase

	queue  *runQueue
	ids    idgen.StringGenerator
	logger zerolog.Logger
	stats  counters

	tasksLock sync.Mutex
	tasks     map[string]*Task

	// resumed is non-nil while paused and is closed by Continue.
	resumed      chan struct{}
	isPausedLock sync.Mutex
	pollLock     sync.Mutex

	singleRunLock sync.Mutex
}

// Spawner submits new tasks to an Executor.
type Spawner struct {
	exec *Executor
}

// New builds an executor with default settings.
func New() (*Executor, *Spawner) {
	return MakeBuilder().Build()
}

// Spawn enqueues f as a new task and returns immediately.
func (s *Spawner) Spawn(f future.Future[future.Unit]) {
	s.SpawnNamed("", f)
}

// SpawnNamed is like Spawn but gives the task a name for monitoring and
// tracing.
func (s *Spawner) SpawnNamed(name string, f future.Future[future.Unit]) *Task {
	return s.exec.spawn(name, f)
}

// Close closes the spawner. The executor's Run returns once every task
// spawned so far has completed. Close is idempotent.
func (s *Spawner) Close() {
	s.exec.queue.closeSpawner()
}

// Executor returns the executor the spawner feeds.
func (s *Spawner) Executor() *Executor {
	return s.exec
}

func (e *Executor) spawn(name string, f future.Future[future.Unit]) *Task {
	e.queue.admit()

	t := &Task{
		id:   e.ids.Generate(),
		name: name,
		exec: e,
		fut:  f,
	}
	t.scheduled.Store(true)

	e.tasksLock.Lock()
	e.tasks[t.id] = t
	e.tasksLock.Unlock()

	e.stats.spawned.Add(1)
	e.InvokeHook(hookCtx(e, HookPosTaskSpawn, t))
	e.logger.Debug().Str("task", t.id).Str("name", name).Msg("task spawned")

	e.queue.push(t)

	return t
}

// Run polls tasks until the run queue is closed, which happens after the
// spawner is closed and every task has completed, or until ctx is cancelled.
// Cancellation is observed while paused too. Tasks still pending on
// cancellation are abandoned. Run must not be called
// concurrently with itself.
func (e *Executor) Run(ctx context.Context) error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	for {
		select {
		case <-ctx.Done():
			e.logger.Debug().Err(ctx.Err()).Msg("executor stopped")
			return ctx.Err()
		case t, ok := <-e.queue.ch:
			if !ok {
				e.logger.Debug().Msg("run queue closed")
				return nil
			}

			if err := e.enterPoll(ctx); err != nil {
				e.logger.Debug().Err(err).Msg("executor stopped while paused")
				return err
			}

			e.runTask(t)
			e.pollLock.Unlock()
		}
	}
}

// enterPoll waits until the executor is not paused and takes pollLock. It
// gives up when ctx is cancelled.
func (e *Executor) enterPoll(ctx context.Context) error {
	for {
		e.isPausedLock.Lock()
		resumed := e.resumed

		if resumed == nil {
			e.pollLock.Lock()
			e.isPausedLock.Unlock()

			return nil
		}

		e.isPausedLock.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resumed:
		}
	}
}

// Go runs the executor on a new goroutine. The returned channel receives
// Run's result.
func (e *Executor) Go(ctx context.Context) <-chan error {
	errc := make(chan error, 1)

	go func() {
		errc <- e.Run(ctx)
	}()

	return errc
}

func (e *Executor) runTask(t *Task) {
	e.InvokeHook(hookCtx(e, HookPosBeforePoll, t))

	completed := t.poll()
	e.stats.polls.Add(1)

	ctx := hookCtx(e, HookPosAfterPoll, t)
	ctx.Detail = completed
	e.InvokeHook(ctx)

	if !completed {
		return
	}

	e.tasksLock.Lock()
	delete(e.tasks, t.id)
	e.tasksLock.Unlock()

	e.stats.completed.Add(1)
	e.InvokeHook(hookCtx(e, HookPosTaskDone, t))
	e.logger.Debug().
		Str("task", t.id).
		Uint64("polls", t.Polls()).
		Msg("task finished")

	e.queue.release()
}

// Pause stops the executor from polling more tasks until Continue is called.
// It waits for the poll in progress to finish. Pause must not be called from
// inside a task.
func (e *Executor) Pause() {
	e.isPausedLock.Lock()
	if e.resumed == nil {
		e.resumed = make(chan struct{})
	}
	e.isPausedLock.Unlock()

	e.pollLock.Lock()
	e.pollLock.Unlock()
}

// Continue allows the executor to poll tasks again.
func (e *Executor) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.resumed == nil {
		return
	}

	close(e.resumed)
	e.resumed = nil
}

// IsPaused reports whether the executor is paused.
func (e *Executor) IsPaused() bool {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	return e.resumed != nil
}

// Stats returns a snapshot of the executor counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Spawned:   e.stats.spawned.Load(),
		Completed: e.stats.completed.Load(),
		Polls:     e.stats.polls.Load(),
		Wakes:     e.stats.wakes.Load(),
		Queued:    e.queue.len(),
		Capacity:  e.queue.capacity(),
		Paused:    e.IsPaused(),
	}
}

// Tasks lists the tasks that have been spawned and not completed yet.
func (e *Executor) Tasks() []TaskInfo {
	e.tasksLock.Lock()
	defer e.tasksLock.Unlock()

	infos := make([]TaskInfo, 0, len(e.tasks))
	for _, t := range e.tasks {
		infos = append(infos, TaskInfo{ID: t.id, Name: t.name, Polls: t.Polls()})
	}

	return infos
}

func hookCtx(e *Executor, pos *hooking.HookPos, t *Task) hooking.HookCtx {
	return hooking.HookCtx{
		Domain: e,
		Pos:    pos,
		Item:   t,
	}
}

package executor

import (
	"context"

	"github.com/sarchlab/karma/future"
)

// Handle gives access to the value produced by a task spawned with
// SpawnHandle.
type Handle[T any] struct {
	task  *Task
	done  chan struct{}
	value T
}

// SpawnHandle spawns f and returns a handle to its eventual value.
func SpawnHandle[T any](s *Spawner, f future.Future[T]) *Handle[T] {
	return SpawnHandleNamed(s, "", f)
}

// SpawnHandleNamed is like SpawnHandle but names the task.
func SpawnHandleNamed[T any](s *Spawner, name string, f future.Future[T]) *Handle[T] {
	h := &Handle[T]{done: make(chan struct{})}

	h.task = s.SpawnNamed(name, future.Map(f, func(v T) future.Unit {
		h.value = v
		close(h.done)

		return future.Unit{}
	}))

	return h
}

// Task returns the task behind the handle.
func (h *Handle[T]) Task() *Task {
	return h.task
}

// Done is closed once the value is available.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Value returns the value without blocking. The bool is false if the task has
// not completed yet.
func (h *Handle[T]) Value() (T, bool) {
	select {
	case <-h.done:
		return h.value, true
	default:
		var zero T
		return zero, false
	}
}

// Wait blocks until the value is available or ctx is done.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

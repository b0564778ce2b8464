package executor

import (
	"github.com/rs/zerolog"
	"github.com/sarchlab/karma/hooking"
	"github.com/sarchlab/karma/idgen"
)

// Builder can build executors.
type Builder struct {
	capacity int
	ids      idgen.StringGenerator
	logger   zerolog.Logger
	hooks    []hooking.Hook
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		capacity: MaxTasks,
		logger:   zerolog.Nop(),
	}
}

// WithCapacity sets the capacity of the run queue.
func (b Builder) WithCapacity(capacity int) Builder {
	b.capacity = capacity
	return b
}

// WithIDGenerator sets the generator used for task IDs.
func (b Builder) WithIDGenerator(ids idgen.StringGenerator) Builder {
	b.ids = ids
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger zerolog.Logger) Builder {
	b.logger = logger
	return b
}

// WithHook registers a hook on the executor being built.
func (b Builder) WithHook(hook hooking.Hook) Builder {
	b.hooks = append(b.hooks[:len(b.hooks):len(b.hooks)], hook)
	return b
}

// Build creates the executor and its spawner.
func (b Builder) Build() (*Executor, *Spawner) {
	if b.capacity <= 0 {
		panic("executor: capacity must be positive")
	}

	ids := b.ids
	if ids == nil {
		ids = idgen.NewSequential()
	}

	e := &Executor{
		HookableBase: hooking.NewHookableBase(),
		queue:        newRunQueue(b.capacity),
		ids:          ids,
		logger:       b.logger.With().Str("component", "executor").Logger(),
		tasks:        make(map[string]*Task),
	}

	for _, h := range b.hooks {
		e.AcceptHook(h)
	}

	return e, &Spawner{exec: e}
}

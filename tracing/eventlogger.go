package tracing

import (
	"github.com/rs/zerolog"
	"github.com/sarchlab/karma/executor"
	"github.com/sarchlab/karma/hooking"
)

// EventLogger is a hook that prints every event it sees.
type EventLogger struct {
	logger zerolog.Logger
	level  zerolog.Level
}

// NewEventLogger returns an EventLogger that writes into logger at level.
func NewEventLogger(logger zerolog.Logger, level zerolog.Level) *EventLogger {
	return &EventLogger{
		logger: logger.With().Str("component", "events").Logger(),
		level:  level,
	}
}

// Func writes the event information into the logger.
func (h *EventLogger) Func(ctx hooking.HookCtx) {
	e := h.logger.WithLevel(h.level).Str("pos", ctx.Pos.Name)

	if task, ok := ctx.Item.(*executor.Task); ok {
		e = e.Str("task", task.ID())
		if task.Name() != "" {
			e = e.Str("name", task.Name())
		}
	} else {
		e = e.Str("source", sourceName(ctx.Domain))
		if ctx.Item != nil {
			e = e.Str("item", describe(ctx.Item))
		}
	}

	if ctx.Detail != nil {
		e = e.Str("detail", describe(ctx.Detail))
	}

	e.Send()
}

var _ hooking.Hook = (*EventLogger)(nil)

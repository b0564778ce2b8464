package karma

import (
	"github.com/rs/zerolog"
	"github.com/sarchlab/karma/hooking"
)

// Karma wraps a device with the history of the messages that changed its
// state.
type Karma[S comparable, I Msg[S], O Msg[S]] struct {
	dev     Device[S, I, O]
	history *History[I, O]
	logger  zerolog.Logger
}

// Builder can build Karma wrappers.
type Builder struct {
	historyCapacity int
	logger          zerolog.Logger
	hooks           []hooking.Hook
}

// MakeBuilder creates a builder with default parameters. The history is
// unbounded by default.
func MakeBuilder() Builder {
	return Builder{logger: zerolog.Nop()}
}

// WithHistoryCapacity bounds the history. Zero means unbounded.
func (b Builder) WithHistoryCapacity(capacity int) Builder {
	b.historyCapacity = capacity
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger zerolog.Logger) Builder {
	b.logger = logger
	return b
}

// WithHistoryHook registers a hook on the history of the wrapper being built.
func (b Builder) WithHistoryHook(hook hooking.Hook) Builder {
	b.hooks = append(b.hooks[:len(b.hooks):len(b.hooks)], hook)
	return b
}

// Build wraps dev.
func Build[S comparable, I Msg[S], O Msg[S]](
	b Builder,
	dev Device[S, I, O],
) *Karma[S, I, O] {
	h := NewHistory[I, O](b.historyCapacity)
	for _, hook := range b.hooks {
		h.AcceptHook(hook)
	}

	return &Karma[S, I, O]{
		dev:     dev,
		history: h,
		logger: b.logger.With().
			Str("component", "karma").
			Uint64("peripheral", dev.ID()).
			Logger(),
	}
}

// New wraps dev with default settings.
func New[S comparable, I Msg[S], O Msg[S]](dev Device[S, I, O]) *Karma[S, I, O] {
	return Build(MakeBuilder(), dev)
}

// Device returns the wrapped device.
func (k *Karma[S, I, O]) Device() Device[S, I, O] {
	return k.dev
}

// History returns the shared history log.
func (k *Karma[S, I, O]) History() *History[I, O] {
	return k.history
}

// PowerCycle resets the wrapped device. The history is kept so that the
// state can be replayed.
func (k *Karma[S, I, O]) PowerCycle() {
	k.logger.Debug().Msg("power cycle")
	k.dev.PowerCycle()
}

// Command sends cmd and returns a future for its response.
func (k *Karma[S, I, O]) Command(cmd I) (*RequestFuture[S, I, O], error) {
	return NewCommand(k, cmd)
}

// AwaitData returns a future for the next unsolicited response.
func (k *Karma[S, I, O]) AwaitData() *RequestFuture[S, I, O] {
	return NewAwaitData(k)
}

func (k *Karma[S, I, O]) recordInput(in I) {
	if !HasStateEffect[S](in) {
		return
	}

	e := k.history.AppendInput(in)
	k.logger.Debug().Stringer("event", e).Msg("history")
}

func (k *Karma[S, I, O]) recordOutput(out O) {
	if !HasStateEffect[S](out) {
		return
	}

	e := k.history.AppendOutput(out)
	k.logger.Debug().Stringer("event", e).Msg("history")
}

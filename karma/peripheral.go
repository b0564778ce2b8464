// Package karma connects simulated peripherals to the task executor.
//
// A peripheral is a state machine driven by input messages (commands) and
// output messages (responses). Request futures send commands and wait for the
// matching response interrupt. Karma wraps one peripheral and keeps a log of
// every message that changed its state, so that the state can be rebuilt by
// replaying the log after the peripheral was reset.
package karma

import (
	"errors"

	"github.com/sarchlab/karma/future"
)

var (
	// ErrDisconnected is returned when the hardware side of a peripheral is
	// gone, either because it was closed or because it faulted.
	ErrDisconnected = errors.New("karma: peripheral disconnected")

	// ErrProtocolViolation is wrapped by the faults that peripherals record
	// when a command arrives in a state that cannot accept it.
	ErrProtocolViolation = errors.New("karma: protocol violation")

	// ErrReplayDiverged is returned by a replay when the log does not
	// describe a sequence the peripheral can accept.
	ErrReplayDiverged = errors.New("karma: replay diverged from history")
)

// Msg is a message exchanged with a peripheral. Every message names the state
// the peripheral must be in to accept or produce it, and the state the
// peripheral is in afterwards.
type Msg[S comparable] interface {
	RequiredInitialState() S
	ResultingState() S
}

// HasStateEffect reports whether m moves the peripheral to another state.
func HasStateEffect[S comparable](m Msg[S]) bool {
	return m.RequiredInitialState() != m.ResultingState()
}

// Replayable is implemented by inputs that may opt out of replay. Inputs that
// do not implement it are replayed.
type Replayable interface {
	Replayable() bool
}

func isReplayable(m any) bool {
	if r, ok := m.(Replayable); ok {
		return r.Replayable()
	}

	return true
}

// Peripheral is a simulated device with a discrete state.
type Peripheral[S comparable] interface {
	// ID returns the identifier allocated when the peripheral was built.
	ID() uint64

	// CurrentState returns a snapshot of the device state.
	CurrentState() S

	// InitialState returns the state the device is in after a power cycle.
	InitialState() S

	// PowerCycle asks the device to reset. The reset happens asynchronously
	// and is not confirmed by any response.
	PowerCycle()
}

// Protocol tells request futures how a device pairs commands with responses.
type Protocol[I, O any] interface {
	// ExpectsResponse reports whether the device answers cmd.
	ExpectsResponse(cmd I) bool

	// Matches reports whether out completes req. Matching is by kind.
	Matches(req Request[I], out O) bool
}

// Device is a Peripheral plus the plumbing that request futures use to talk
// to it.
type Device[S comparable, I Msg[S], O Msg[S]] interface {
	Peripheral[S]

	// Issue sends a command to the hardware side. Commands are processed in
	// the order they are issued.
	Issue(cmd I) error

	// Interrupts returns the buffer the hardware side delivers responses to.
	Interrupts() *Interrupts[O]

	// Wakers returns the list notified whenever a response is delivered, the
	// device is reset, or the device goes away.
	Wakers() *future.WakerList

	// Err returns the error that stopped the hardware side, or nil while it
	// is running.
	Err() error

	// Protocol returns the command/response pairing rules of the device.
	Protocol() Protocol[I, O]
}

// Request describes what a request future waits for: the response to a
// command, or the next unsolicited response.
type Request[I any] struct {
	cmd    I
	hasCmd bool
}

// CommandRequest describes a request waiting for the response to cmd.
func CommandRequest[I any](cmd I) Request[I] {
	return Request[I]{cmd: cmd, hasCmd: true}
}

// AwaitRequest describes a request waiting for unsolicited data.
func AwaitRequest[I any]() Request[I] {
	return Request[I]{}
}

// Command returns the command of the request. The bool is false for await
// requests.
func (r Request[I]) Command() (I, bool) {
	return r.cmd, r.hasCmd
}

// IsAwait reports whether the request waits for unsolicited data.
func (r Request[I]) IsAwait() bool {
	return !r.hasCmd
}

// Package radio simulates a radio peripheral.
//
// The radio hardware runs on its own goroutines: a hardware loop that
// executes commands, and a data generator that makes packets arrive at
// random times. The CPU side talks to it only through the command mailbox,
// the interrupt buffer, and the waker list, so it plugs into the karma
// request futures like any other device.
package radio

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/karma/future"
	"github.com/sarchlab/karma/hooking"
	"github.com/sarchlab/karma/karma"
)

var (
	// HookPosCommand marks when the hardware starts executing a command.
	HookPosCommand = &hooking.HookPos{Name: "Radio Command"}

	// HookPosResponse marks when the hardware raises a response interrupt.
	HookPosResponse = &hooking.HookPos{Name: "Radio Response"}

	// HookPosDataDropped marks when inbound data is lost because the radio
	// is not receiving.
	HookPosDataDropped = &hooking.HookPos{Name: "Radio Data Dropped"}

	// HookPosDataEvicted marks when a buffered packet nobody awaited is
	// evicted to make room for a newer one.
	HookPosDataEvicted = &hooking.HookPos{Name: "Radio Data Evicted"}

	// HookPosReset marks when the hardware is power cycled.
	HookPosReset = &hooking.HookPos{Name: "Radio Reset"}

	// HookPosFault marks when the hardware stops on a protocol violation.
	HookPosFault = &hooking.HookPos{Name: "Radio Fault"}
)

var (
	// ErrDisconnected is returned when the radio hardware is gone.
	ErrDisconnected = karma.ErrDisconnected

	// ErrProtocolViolation is wrapped by every ProtocolViolation.
	ErrProtocolViolation = karma.ErrProtocolViolation
)

// ProtocolViolation is the fault of a radio that received a command it
// cannot accept in its current state.
type ProtocolViolation struct {
	Radio uint64
	Cmd   Input
	State State
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("radio %d: protocol violation: %v requires %v, radio is %v",
		e.Radio, e.Cmd, e.Cmd.RequiredInitialState(), e.State)
}

// Unwrap returns ErrProtocolViolation.
func (e *ProtocolViolation) Unwrap() error {
	return ErrProtocolViolation
}

// Stats are counters describing what the radio hardware did so far.
type Stats struct {
	Commands  uint64 `json:"commands"`
	Responses uint64 `json:"responses"`
	Dropped   uint64 `json:"dropped"`
	Evicted   uint64 `json:"evicted"`
	Resets    uint64 `json:"resets"`
}

type counters struct {
	commands  atomic.Uint64
	responses atomic.Uint64
	dropped   atomic.Uint64
	evicted   atomic.Uint64
	resets    atomic.Uint64
}

// Radio is the CPU-side handle of a simulated radio.
type Radio struct {
	*hooking.HookableBase

	id          uint64
	byteTime    time.Duration
	minInterval time.Duration
	maxInterval time.Duration
	payloadSize int
	rng         *rand.Rand
	logger      zerolog.Logger

	stateLock sync.Mutex
	state     State

	faultLock sync.Mutex
	fault     error

	commands *mailbox[Input]
	inbound  *mailbox[[]byte]
	resets   *mailbox[struct{}]

	interrupts *karma.Interrupts[Output]
	wakers     *future.WakerList

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	stats counters
}

// ID returns the identifier of the radio.
func (r *Radio) ID() uint64 {
	return r.id
}

// Name returns a readable name of the radio.
func (r *Radio) Name() string {
	return fmt.Sprintf("Radio[%d]", r.id)
}

// CurrentState returns a snapshot of the hardware state.
func (r *Radio) CurrentState() State {
	r.stateLock.Lock()
	defer r.stateLock.Unlock()

	return r.state
}

// InitialState returns NotInitialized.
func (r *Radio) InitialState() State {
	return NotInitialized
}

// PowerCycle asks the hardware to reset. The hardware drops back to
// NotInitialized without raising a response.
func (r *Radio) PowerCycle() {
	r.resets.put(struct{}{})
}

// Issue queues a command for the hardware. It fails once the hardware is
// gone.
func (r *Radio) Issue(cmd Input) error {
	if err := r.Err(); err != nil {
		if errors.Is(err, ErrDisconnected) {
			return fmt.Errorf("radio %d: %w", r.id, err)
		}

		return fmt.Errorf("radio %d: %w: %w", r.id, ErrDisconnected, err)
	}

	r.commands.put(cmd)

	return nil
}

// InjectData makes payload arrive over the air as if the data generator had
// produced it.
func (r *Radio) InjectData(payload []byte) error {
	if err := r.Err(); err != nil {
		return fmt.Errorf("radio %d: %w", r.id, err)
	}

	r.inbound.put(append([]byte(nil), payload...))

	return nil
}

// Interrupts returns the buffer of raised responses.
func (r *Radio) Interrupts() *karma.Interrupts[Output] {
	return r.interrupts
}

// Wakers returns the list of wakers notified on every response, reset, and
// fault.
func (r *Radio) Wakers() *future.WakerList {
	return r.wakers
}

// Protocol returns the radio command/response pairing.
func (r *Radio) Protocol() karma.Protocol[Input, Output] {
	return Protocol{}
}

// Err returns the fault that stopped the hardware, ErrDisconnected if the
// radio was closed, or nil while the hardware runs.
func (r *Radio) Err() error {
	r.faultLock.Lock()
	defer r.faultLock.Unlock()

	if r.fault != nil {
		return r.fault
	}

	if r.ctx.Err() != nil {
		return ErrDisconnected
	}

	return nil
}

// Stats returns a snapshot of the hardware counters.
func (r *Radio) Stats() Stats {
	return Stats{
		Commands:  r.stats.commands.Load(),
		Responses: r.stats.responses.Load(),
		Dropped:   r.stats.dropped.Load(),
		Evicted:   r.stats.evicted.Load(),
		Resets:    r.stats.resets.Load(),
	}
}

// Close stops the hardware goroutines and wakes every pending request so it
// can observe ErrDisconnected. Close must not be called from a hook.
func (r *Radio) Close() {
	r.closeOnce.Do(func() {
		r.cancel()
		r.wg.Wait()
		r.logger.Debug().Msg("radio closed")
		r.wakers.WakeAll()
	})
}

func (r *Radio) start(dataGenerator bool) {
	r.wg.Add(1)
	go r.runHardware()

	if dataGenerator {
		r.wg.Add(1)
		go r.generateData()
	}
}

func (r *Radio) runHardware() {
	defer r.wg.Done()
	defer r.recoverFault()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.resets.ready():
			if _, ok := r.resets.take(); ok {
				r.reset()
			}
		case <-r.inbound.ready():
			if payload, ok := r.inbound.take(); ok {
				r.receive(payload)
			}
		case <-r.commands.ready():
			if cmd, ok := r.commands.take(); ok {
				r.execute(cmd)
			}
		}
	}
}

func (r *Radio) execute(cmd Input) {
	r.stats.commands.Add(1)
	r.invokeHook(HookPosCommand, cmd, nil)

	prev := r.CurrentState()
	if prev != cmd.RequiredInitialState() {
		panic(&ProtocolViolation{Radio: r.id, Cmd: cmd, State: prev})
	}

	r.setState(cmd.ResultingState())
	r.logger.Debug().
		Stringer("cmd", cmd).
		Stringer("from", prev).
		Stringer("to", cmd.ResultingState()).
		Msg("command")

	switch cmd.Kind {
	case Init:
		r.respond(Output{Kind: InitDone})
	case Send:
		if !r.sleep(time.Duration(len(cmd.Payload)) * r.byteTime) {
			return
		}

		r.setState(Transmitting)
		r.respond(Output{Kind: SendDone})
	default:
		r.wakers.WakeAll()
	}
}

func (r *Radio) receive(payload []byte) {
	state := r.CurrentState()
	if state != Receiving {
		r.stats.dropped.Add(1)
		r.invokeHook(HookPosDataDropped, payload, state)
		r.logger.Debug().
			Int("bytes", len(payload)).
			Stringer("state", state).
			Msg("data dropped")

		return
	}

	r.respond(Output{Kind: DataReceived, Payload: payload})
}

func (r *Radio) reset() {
	prev := r.CurrentState()
	r.setState(NotInitialized)

	r.stats.resets.Add(1)
	r.invokeHook(HookPosReset, nil, prev)
	r.logger.Info().Stringer("from", prev).Msg("power cycled")

	r.wakers.WakeAll()
}

func (r *Radio) respond(out Output) {
	if old, evicted := r.interrupts.Deliver(out); evicted {
		r.stats.evicted.Add(1)
		r.invokeHook(HookPosDataEvicted, old.Payload, nil)
		r.logger.Debug().
			Int("bytes", len(old.Payload)).
			Msg("stale data evicted")
	}

	r.stats.responses.Add(1)
	r.invokeHook(HookPosResponse, out, nil)
	r.logger.Debug().Stringer("response", out).Msg("interrupt")

	r.wakers.WakeAll()
}

func (r *Radio) recoverFault() {
	v := recover()
	if v == nil {
		return
	}

	violation, ok := v.(*ProtocolViolation)
	if !ok {
		panic(v)
	}

	r.faultLock.Lock()
	r.fault = violation
	r.faultLock.Unlock()

	r.cancel()

	r.logger.Error().Err(violation).Msg("hardware stopped")
	r.invokeHook(HookPosFault, violation.Cmd, violation)

	r.wakers.WakeAll()
}

func (r *Radio) generateData() {
	defer r.wg.Done()

	for {
		if !r.sleep(r.nextInterval()) {
			return
		}

		payload := make([]byte, r.payloadSize)
		r.rng.Read(payload)

		r.logger.Debug().Int("bytes", len(payload)).Msg("data arriving")
		r.inbound.put(payload)
	}
}

func (r *Radio) nextInterval() time.Duration {
	spread := r.maxInterval - r.minInterval
	if spread <= 0 {
		return r.minInterval
	}

	return r.minInterval + time.Duration(r.rng.Int63n(int64(spread)))
}

// sleep waits for d and reports false if the radio was closed meanwhile.
func (r *Radio) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Radio) setState(s State) {
	r.stateLock.Lock()
	r.state = s
	r.stateLock.Unlock()
}

func (r *Radio) invokeHook(pos *hooking.HookPos, item, detail any) {
	if r.NumHooks() == 0 {
		return
	}

	r.InvokeHook(hooking.HookCtx{
		Domain: r,
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}

var _ karma.Device[State, Input, Output] = (*Radio)(nil)

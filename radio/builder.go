package radio

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/karma/future"
	"github.com/sarchlab/karma/hooking"
	"github.com/sarchlab/karma/idgen"
	"github.com/sarchlab/karma/karma"
)

// Defaults of the simulated hardware.
const (
	DefaultByteTime        = 500 * time.Millisecond
	DefaultMinDataInterval = 5 * time.Second
	DefaultMaxDataInterval = 15 * time.Second
	DefaultPayloadSize     = 10
	DefaultDataBuffer      = 16
)

var radioIDs = idgen.New()

// Builder can build radios.
type Builder struct {
	id            uint64
	byteTime      time.Duration
	minInterval   time.Duration
	maxInterval   time.Duration
	payloadSize   int
	dataBuffer    int
	rng           *rand.Rand
	logger        zerolog.Logger
	dataGenerator bool
	hooks         []hooking.Hook
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		byteTime:      DefaultByteTime,
		minInterval:   DefaultMinDataInterval,
		maxInterval:   DefaultMaxDataInterval,
		payloadSize:   DefaultPayloadSize,
		dataBuffer:    DefaultDataBuffer,
		logger:        zerolog.Nop(),
		dataGenerator: true,
	}
}

// WithID sets the ID of the radio. By default, IDs are allocated
// sequentially.
func (b Builder) WithID(id uint64) Builder {
	b.id = id
	return b
}

// WithByteTime sets how long the radio takes to send one byte.
func (b Builder) WithByteTime(t time.Duration) Builder {
	b.byteTime = t
	return b
}

// WithDataInterval sets the range of the random delay between two inbound
// packets.
func (b Builder) WithDataInterval(minInterval, maxInterval time.Duration) Builder {
	b.minInterval = minInterval
	b.maxInterval = maxInterval

	return b
}

// WithPayloadSize sets the size of generated packets.
func (b Builder) WithPayloadSize(n int) Builder {
	b.payloadSize = n
	return b
}

// WithDataBuffer sets how many received packets wait for AwaitData. Once
// full, the oldest packet is evicted. Zero keeps every packet.
func (b Builder) WithDataBuffer(n int) Builder {
	b.dataBuffer = n
	return b
}

// WithRand sets the random source of the data generator.
func (b Builder) WithRand(rng *rand.Rand) Builder {
	b.rng = rng
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger zerolog.Logger) Builder {
	b.logger = logger
	return b
}

// WithoutDataGenerator builds a radio that only receives data given to
// InjectData.
func (b Builder) WithoutDataGenerator() Builder {
	b.dataGenerator = false
	return b
}

// WithHook registers a hook on the radio being built.
func (b Builder) WithHook(hook hooking.Hook) Builder {
	b.hooks = append(b.hooks[:len(b.hooks):len(b.hooks)], hook)
	return b
}

// Build creates the radio and starts its hardware goroutines. The radio
// starts in NotInitialized.
func (b Builder) Build() *Radio {
	b.mustBeValid()

	id := b.id
	if id == 0 {
		id = uint64(radioIDs.Generate())
	}

	rng := b.rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &Radio{
		HookableBase: hooking.NewHookableBase(),
		id:           id,
		byteTime:     b.byteTime,
		minInterval:  b.minInterval,
		maxInterval:  b.maxInterval,
		payloadSize:  b.payloadSize,
		rng:          rng,
		logger: b.logger.With().
			Str("component", "radio").
			Uint64("radio", id).
			Logger(),
		state:      NotInitialized,
		commands:   newMailbox[Input](),
		inbound:    newMailbox[[]byte](),
		resets:     newMailbox[struct{}](),
		interrupts: karma.NewBoundedInterrupts(b.dataBuffer, isData),
		wakers:     future.NewWakerList(),
		ctx:        ctx,
		cancel:     cancel,
	}

	for _, h := range b.hooks {
		r.AcceptHook(h)
	}

	r.start(b.dataGenerator)

	return r
}

func (b Builder) mustBeValid() {
	if b.byteTime < 0 {
		panic("radio: byte time must not be negative")
	}

	if b.minInterval < 0 || b.maxInterval < b.minInterval {
		panic("radio: invalid data interval")
	}

	if b.payloadSize < 0 {
		panic("radio: payload size must not be negative")
	}

	if b.dataBuffer < 0 {
		panic("radio: data buffer must not be negative")
	}
}

func isData(out Output) bool {
	return out.Kind == DataReceived
}

// New builds a radio with default parameters.
func New() *Radio {
	return MakeBuilder().Build()
}

// Karma is a history wrapper around a radio.
type Karma = karma.Karma[State, Input, Output]

// Request is a request future against a radio.
type Request = karma.RequestFuture[State, Input, Output]

// Wrap wraps r with an unbounded history.
func Wrap(r *Radio) *Karma {
	return karma.New[State, Input, Output](r)
}

// WrapWith wraps r with a wrapper configured by b.
func WrapWith(b karma.Builder, r *Radio) *Karma {
	return karma.Build[State, Input, Output](b, r)
}

package sensor

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// Builder can build sensors.
type Builder struct {
	minInterval time.Duration
	maxInterval time.Duration
	rng         *rand.Rand
	logger      zerolog.Logger
	measuring   bool
}

// MakeBuilder creates a builder that measures every 1 to 5 seconds.
func MakeBuilder() Builder {
	return Builder{
		minInterval: time.Second,
		maxInterval: 5 * time.Second,
		logger:      zerolog.Nop(),
		measuring:   true,
	}
}

// WithInterval sets the range of the random delay between two readings.
func (b Builder) WithInterval(minInterval, maxInterval time.Duration) Builder {
	b.minInterval = minInterval
	b.maxInterval = maxInterval

	return b
}

// WithRand sets the random source.
func (b Builder) WithRand(rng *rand.Rand) Builder {
	b.rng = rng
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger zerolog.Logger) Builder {
	b.logger = logger
	return b
}

// WithoutMeasuring builds a sensor that only reports readings given to
// Record.
func (b Builder) WithoutMeasuring() Builder {
	b.measuring = false
	return b
}

// Build creates the sensor and starts measuring.
func (b Builder) Build() *Sensor {
	if b.minInterval < 0 || b.maxInterval < b.minInterval {
		panic("sensor: invalid interval")
	}

	rng := b.rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Sensor{
		minInterval: b.minInterval,
		maxInterval: b.maxInterval,
		rng:         rng,
		logger:      b.logger.With().Str("component", "sensor").Logger(),
		cancel:      cancel,
	}

	if b.measuring {
		s.wg.Add(1)
		go s.measure(ctx)
	}

	return s
}

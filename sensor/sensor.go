// Package sensor simulates a temperature sensor that buffers readings until
// the CPU collects them.
package sensor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/karma/future"
)

// Temperature is a reading in degrees Celsius.
type Temperature float64

// Sensor is the CPU-side handle of a simulated temperature sensor. A
// background goroutine appends a reading at random intervals.
type Sensor struct {
	mu       sync.Mutex
	buffer   []Temperature
	waker    future.Waker
	reading  bool
	readings uint64

	minInterval time.Duration
	maxInterval time.Duration
	rng         *rand.Rand
	logger      zerolog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Read returns a future for the readings buffered so far. Only one read may
// be outstanding; Read returns false while another one is.
func (s *Sensor) Read() (*ReadFuture, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reading {
		return nil, false
	}

	s.reading = true

	return &ReadFuture{s: s}, true
}

// Record adds a reading as if the hardware had measured it.
func (s *Sensor) Record(t Temperature) {
	s.mu.Lock()
	s.buffer = append(s.buffer, t)
	s.readings++
	w := s.waker
	s.mu.Unlock()

	s.logger.Debug().Float64("temperature", float64(t)).Msg("reading")

	if w != nil {
		w.Wake()
	}
}

// Readings returns how many readings were recorded so far.
func (s *Sensor) Readings() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readings
}

// Close stops the measuring goroutine.
func (s *Sensor) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

func (s *Sensor) measure(ctx context.Context) {
	defer s.wg.Done()

	for {
		d := s.minInterval
		if spread := s.maxInterval - s.minInterval; spread > 0 {
			d += time.Duration(s.rng.Int63n(int64(spread)))
		}

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		s.Record(Temperature(s.rng.Float64() * 100))
	}
}

// ReadFuture resolves to every reading buffered since the previous read once
// there is at least one.
type ReadFuture struct {
	s *Sensor
}

// Poll takes the buffered readings, or remembers the waker if there are
// none yet.
func (f *ReadFuture) Poll(cx *future.Context) future.Poll[[]Temperature] {
	s := f.s

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.reading {
		panic("sensor: read future polled after completion")
	}

	if len(s.buffer) == 0 {
		s.waker = cx.Waker()
		return future.Pending[[]Temperature]()
	}

	readings := s.buffer
	s.buffer = nil
	s.waker = nil
	s.reading = false

	return future.Ready(readings)
}

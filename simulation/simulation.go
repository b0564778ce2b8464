// Package simulation wires an executor, peripherals, tracing and monitoring
// into one runnable simulation.
package simulation

import (
	"context"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sarchlab/karma/datarecording"
	"github.com/sarchlab/karma/executor"
	"github.com/sarchlab/karma/karma"
	"github.com/sarchlab/karma/monitoring"
	"github.com/sarchlab/karma/radio"
	"github.com/sarchlab/karma/sensor"
	"github.com/sarchlab/karma/tracing"
)

// A Simulation owns the executor and the peripherals that run with it.
type Simulation struct {
	id     string
	logger zerolog.Logger

	exec    *executor.Executor
	spawner *executor.Spawner

	dataRecorder datarecording.DataRecorder
	tracer       *tracing.DBTracer
	monitor      *monitoring.Monitor
	monitorURL   string

	radioBuilder  radio.Builder
	sensorBuilder sensor.Builder
	karmaBuilder  karma.Builder

	mu       sync.Mutex
	seed     int64
	rngCount int64
	radios   []*radio.Radio
	sensors  []*sensor.Sensor

	terminateOnce sync.Once
}

// ID returns the unique ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Executor returns the executor of the simulation.
func (s *Simulation) Executor() *executor.Executor {
	return s.exec
}

// Spawner returns the spawner that feeds the executor.
func (s *Simulation) Spawner() *executor.Spawner {
	return s.spawner
}

// Logger returns the logger of the simulation.
func (s *Simulation) Logger() zerolog.Logger {
	return s.logger
}

// DataRecorder returns the data recorder. It is nil without tracing.
func (s *Simulation) DataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// Tracer returns the tracer. It is nil without tracing.
func (s *Simulation) Tracer() *tracing.DBTracer {
	return s.tracer
}

// Monitor returns the monitor. It is nil without monitoring.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// MonitorURL returns the address of the monitoring server, if it runs.
func (s *Simulation) MonitorURL() string {
	return s.monitorURL
}

// Go runs the executor on its own goroutine until ctx is done or every task
// completes after Terminate.
func (s *Simulation) Go(ctx context.Context) <-chan error {
	return s.exec.Go(ctx)
}

// NewRadio builds a radio, wraps it with a history and makes it visible to
// the tracer and the monitor.
func (s *Simulation) NewRadio() *radio.Karma {
	s.mu.Lock()
	defer s.mu.Unlock()

	rb := s.radioBuilder
	if rng := s.nextRand(); rng != nil {
		rb = rb.WithRand(rng)
	}

	r := rb.Build()
	k := radio.WrapWith(s.karmaBuilder, r)

	if s.monitor != nil {
		monitoring.RegisterKarma(s.monitor, k)
	}

	s.radios = append(s.radios, r)
	s.logger.Debug().Str("radio", r.Name()).Msg("radio added")

	return k
}

// NewSensor builds a temperature sensor owned by the simulation.
func (s *Simulation) NewSensor() *sensor.Sensor {
	s.mu.Lock()
	defer s.mu.Unlock()

	sb := s.sensorBuilder
	if rng := s.nextRand(); rng != nil {
		sb = sb.WithRand(rng)
	}

	sn := sb.Build()
	s.sensors = append(s.sensors, sn)

	return sn
}

// Terminate stops the peripherals, closes the spawner and flushes the
// recorded trace. The executor returns once the tasks still queued finish.
func (s *Simulation) Terminate() {
	s.terminateOnce.Do(func() {
		s.mu.Lock()
		radios, sensors := s.radios, s.sensors
		s.mu.Unlock()

		for _, r := range radios {
			r.Close()
		}

		for _, sn := range sensors {
			sn.Close()
		}

		s.spawner.Close()

		if s.monitor != nil {
			if err := s.monitor.StopServer(); err != nil {
				s.logger.Warn().Err(err).Msg("stopping monitor")
			}
		}

		if s.dataRecorder != nil {
			if err := s.dataRecorder.Close(); err != nil {
				s.logger.Warn().Err(err).Msg("closing data recorder")
			}
		}
	})
}

func (s *Simulation) nextRand() *rand.Rand {
	if s.seed == 0 {
		return nil
	}

	s.rngCount++

	return rand.New(rand.NewSource(s.seed + s.rngCount))
}

package simulation

import (
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/sarchlab/karma/config"
	"github.com/sarchlab/karma/datarecording"
	"github.com/sarchlab/karma/executor"
	"github.com/sarchlab/karma/karma"
	"github.com/sarchlab/karma/monitoring"
	"github.com/sarchlab/karma/radio"
	"github.com/sarchlab/karma/sensor"
	"github.com/sarchlab/karma/tracing"
)

// Builder can be used to build a simulation.
type Builder struct {
	queueCapacity   int
	historyCapacity int
	logger          zerolog.Logger
	monitorOn       bool
	monitorPort     int
	tracingOn       bool
	logEvents       bool
	outputFileName  string
	seed            int64
	radioBuilder    radio.Builder
	sensorBuilder   sensor.Builder
}

// MakeBuilder creates a new builder. Monitoring and tracing are off by
// default.
func MakeBuilder() Builder {
	return Builder{
		queueCapacity: executor.MaxTasks,
		logger:        zerolog.Nop(),
		radioBuilder:  radio.MakeBuilder(),
		sensorBuilder: sensor.MakeBuilder(),
	}
}

// WithConfig applies a loaded configuration.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.queueCapacity = cfg.QueueCapacity
	b.historyCapacity = cfg.HistoryCapacity
	b.monitorOn = cfg.Monitor
	if cfg.Monitor {
		b.monitorPort = cfg.MonitorPort
	}
	b.seed = cfg.Seed

	if cfg.TracePath != "" {
		b.tracingOn = true
		b.outputFileName = cfg.TracePath
	}

	minInterval, maxInterval := cfg.Radio.DataInterval()
	b.radioBuilder = b.radioBuilder.
		WithByteTime(cfg.Radio.ByteTime()).
		WithDataInterval(minInterval, maxInterval).
		WithPayloadSize(cfg.Radio.PayloadSize).
		WithDataBuffer(cfg.Radio.DataBuffer)

	if cfg.Radio.NoDataGenerator {
		b.radioBuilder = b.radioBuilder.WithoutDataGenerator()
	}

	return b
}

// WithQueueCapacity sets how many tasks may wait in the run queue.
func (b Builder) WithQueueCapacity(capacity int) Builder {
	b.queueCapacity = capacity
	return b
}

// WithHistoryCapacity bounds the history of every radio. Zero means
// unbounded.
func (b Builder) WithHistoryCapacity(capacity int) Builder {
	b.historyCapacity = capacity
	return b
}

// WithLogger sets the logger shared by every part of the simulation.
func (b Builder) WithLogger(logger zerolog.Logger) Builder {
	b.logger = logger
	return b
}

// WithMonitoring turns on the monitoring server.
func (b Builder) WithMonitoring() Builder {
	b.monitorOn = true
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithTracing records task and peripheral events into a SQLite file. An
// empty file name picks a unique one.
func (b Builder) WithTracing(outputFileName string) Builder {
	b.tracingOn = true
	b.outputFileName = outputFileName

	return b
}

// WithEventLogging logs every executor and peripheral event at debug level.
func (b Builder) WithEventLogging() Builder {
	b.logEvents = true
	return b
}

// WithSeed makes the simulated hardware deterministic. Zero keeps the
// default random sources.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// WithRadioBuilder sets the builder used for every radio.
func (b Builder) WithRadioBuilder(rb radio.Builder) Builder {
	b.radioBuilder = rb
	return b
}

// WithSensorBuilder sets the builder used for every sensor.
func (b Builder) WithSensorBuilder(sb sensor.Builder) Builder {
	b.sensorBuilder = sb
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if b.historyCapacity < 0 {
		panic("history capacity must not be negative")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		id:     xid.New().String(),
		logger: b.logger,
		seed:   b.seed,
	}

	execBuilder := executor.MakeBuilder().
		WithCapacity(b.queueCapacity).
		WithLogger(b.logger)

	if b.tracingOn {
		outputPath := b.outputFileName
		if outputPath == "" {
			outputPath = "karma_sim_" + s.id
		}

		s.dataRecorder = datarecording.New(outputPath)
		s.tracer = tracing.NewDBTracer(s.dataRecorder)
		execBuilder = execBuilder.WithHook(s.tracer)
	}

	var eventLogger *tracing.EventLogger
	if b.logEvents {
		eventLogger = tracing.NewEventLogger(b.logger, zerolog.DebugLevel)
		execBuilder = execBuilder.WithHook(eventLogger)
	}

	s.exec, s.spawner = execBuilder.Build()

	s.radioBuilder = b.radioBuilder.WithLogger(b.logger)
	s.sensorBuilder = b.sensorBuilder.WithLogger(b.logger)
	s.karmaBuilder = karma.MakeBuilder().
		WithHistoryCapacity(b.historyCapacity).
		WithLogger(b.logger)

	if s.tracer != nil {
		s.radioBuilder = s.radioBuilder.WithHook(s.tracer)
		s.karmaBuilder = s.karmaBuilder.WithHistoryHook(s.tracer)
	}

	if eventLogger != nil {
		s.radioBuilder = s.radioBuilder.WithHook(eventLogger)
		s.karmaBuilder = s.karmaBuilder.WithHistoryHook(eventLogger)
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor().WithLogger(b.logger)
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}

		s.monitor.RegisterExecutor(s.exec)
		s.monitorURL = s.monitor.StartServer()
	}

	return s
}

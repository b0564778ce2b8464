// Package config loads the settings of a karma simulation from a file and
// from KARMA_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid")

// RadioConfig configures the simulated radio.
type RadioConfig struct {
	ByteTimeMS        int  `json:"byte_time_ms" yaml:"byte_time_ms" toml:"byte_time_ms"`
	DataIntervalMinMS int  `json:"data_interval_min_ms" yaml:"data_interval_min_ms" toml:"data_interval_min_ms"`
	DataIntervalMaxMS int  `json:"data_interval_max_ms" yaml:"data_interval_max_ms" toml:"data_interval_max_ms"`
	PayloadSize       int  `json:"payload_size" yaml:"payload_size" toml:"payload_size"`
	DataBuffer        int  `json:"data_buffer" yaml:"data_buffer" toml:"data_buffer"`
	NoDataGenerator   bool `json:"no_data_generator" yaml:"no_data_generator" toml:"no_data_generator"`
}

// ByteTime returns the time the radio takes to send one byte.
func (c RadioConfig) ByteTime() time.Duration {
	return time.Duration(c.ByteTimeMS) * time.Millisecond
}

// DataInterval returns the bounds of the pause between generated packets.
func (c RadioConfig) DataInterval() (time.Duration, time.Duration) {
	return time.Duration(c.DataIntervalMinMS) * time.Millisecond,
		time.Duration(c.DataIntervalMaxMS) * time.Millisecond
}

// Config holds the parameters of a simulation run.
type Config struct {
	LogLevel        string      `json:"log_level" yaml:"log_level" toml:"log_level"`
	Monitor         bool        `json:"monitor" yaml:"monitor" toml:"monitor"`
	MonitorPort     int         `json:"monitor_port" yaml:"monitor_port" toml:"monitor_port"`
	TracePath       string      `json:"trace_path" yaml:"trace_path" toml:"trace_path"`
	QueueCapacity   int         `json:"queue_capacity" yaml:"queue_capacity" toml:"queue_capacity"`
	HistoryCapacity int         `json:"history_capacity" yaml:"history_capacity" toml:"history_capacity"`
	Seed            int64       `json:"seed" yaml:"seed" toml:"seed"`
	Radio           RadioConfig `json:"radio" yaml:"radio" toml:"radio"`
}

// Default returns the configuration used when nothing else is given.
func Default() Config {
	return Config{
		LogLevel:      "info",
		QueueCapacity: 10_000,
		Radio: RadioConfig{
			ByteTimeMS:        500,
			DataIntervalMinMS: 5_000,
			DataIntervalMaxMS: 15_000,
			PayloadSize:       10,
			DataBuffer:        16,
		},
	}
}

// Load reads a configuration file based on its extension. Supports .yaml,
// .yml, .json and .toml. Fields missing from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("config: empty path")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("config: unsupported extension %q", ext)
	}

	if err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// FromEnv loads the given dotenv files, or .env if it exists and no file is
// given, and overlays the KARMA_* variables on cfg. Variables already set in
// the environment win over the files.
func FromEnv(cfg Config, files ...string) (Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}

	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return cfg, fmt.Errorf("config: load env: %w", err)
		}
	}

	var err error

	overlayString(&cfg.LogLevel, "KARMA_LOG_LEVEL")
	overlayString(&cfg.TracePath, "KARMA_TRACE")
	err = errors.Join(err, overlayBool(&cfg.Monitor, "KARMA_MONITOR"))
	err = errors.Join(err, overlayInt(&cfg.MonitorPort, "KARMA_MONITOR_PORT"))
	err = errors.Join(err, overlayInt(&cfg.QueueCapacity, "KARMA_QUEUE_CAPACITY"))
	err = errors.Join(err, overlayInt(&cfg.HistoryCapacity, "KARMA_HISTORY_CAPACITY"))
	err = errors.Join(err, overlayInt(&cfg.Radio.ByteTimeMS, "KARMA_BYTE_TIME_MS"))
	err = errors.Join(err, overlayInt(&cfg.Radio.PayloadSize, "KARMA_PAYLOAD_SIZE"))
	err = errors.Join(err, overlayInt(&cfg.Radio.DataBuffer, "KARMA_DATA_BUFFER"))

	if v, ok := os.LookupEnv("KARMA_SEED"); ok {
		seed, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			err = errors.Join(err, fmt.Errorf("config: KARMA_SEED: %w", perr))
		} else {
			cfg.Seed = seed
		}
	}

	return cfg, err
}

func overlayString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func overlayInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}

	*dst = n

	return nil
}

func overlayBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}

	*dst = b

	return nil
}

// Level parses the log level.
func (c Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}

	l, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("%w: log level: %w", ErrInvalid, err)
	}

	return l, nil
}

// Validate checks that the values can build a simulation.
func (c Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}

	switch {
	case c.QueueCapacity <= 0:
		return fmt.Errorf("%w: queue capacity %d", ErrInvalid, c.QueueCapacity)
	case c.HistoryCapacity < 0:
		return fmt.Errorf("%w: history capacity %d", ErrInvalid, c.HistoryCapacity)
	case c.MonitorPort < 0 || c.MonitorPort > 65535:
		return fmt.Errorf("%w: monitor port %d", ErrInvalid, c.MonitorPort)
	case c.Radio.ByteTimeMS < 0:
		return fmt.Errorf("%w: byte time %dms", ErrInvalid, c.Radio.ByteTimeMS)
	case c.Radio.PayloadSize < 0:
		return fmt.Errorf("%w: payload size %d", ErrInvalid, c.Radio.PayloadSize)
	case c.Radio.DataBuffer < 0:
		return fmt.Errorf("%w: data buffer %d", ErrInvalid, c.Radio.DataBuffer)
	case c.Radio.DataIntervalMinMS <= 0 ||
		c.Radio.DataIntervalMaxMS < c.Radio.DataIntervalMinMS:
		return fmt.Errorf("%w: data interval [%d, %d]ms", ErrInvalid,
			c.Radio.DataIntervalMinMS, c.Radio.DataIntervalMaxMS)
	}

	return nil
}

package main

import (
	"os"
	"time"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/sarchlab/karma/config"
	"github.com/sarchlab/karma/simulation"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "karmasim",
	Short: "karmasim runs a simulated radio on a cooperative task runtime.",
	Long: `karmasim runs a simulated radio on a cooperative task runtime. ` +
		`Commands are recorded in a history so that the radio can be ` +
		`rebuilt after a power cycle.`,
	SilenceUsage: true,
}

func init() {
	addRootFlags(rootCmd)
}

func addRootFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Configuration file (.yaml, .yml, .toml or .json)")
	flags.StringSlice("env", nil, "Dotenv files to load (defaults to .env if present)")
	flags.String("log-level", "", "Log level: debug|info|warn|error")
	flags.Bool("monitor", false, "Serve the monitoring API")
	flags.Int("monitor-port", 0, "Port of the monitoring server (random if 0)")
	flags.Bool("open-monitor", false, "Open the monitoring server in a browser")
	flags.String("trace", "", "Record a trace into this SQLite file (without extension)")
	flags.Bool("log-events", false, "Log every task and radio event at debug level")
	flags.Int64("seed", 0, "Seed of the simulated hardware (random if 0)")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

// loadConfig merges the defaults, the configuration file, the environment
// and the flags, in that order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	cfg := config.Default()

	path, _ := flags.GetString("config")
	if path != "" {
		var err error

		cfg, err = config.Load(path)
		if err != nil {
			return cfg, err
		}
	}

	envFiles, _ := flags.GetStringSlice("env")

	cfg, err := config.FromEnv(cfg, envFiles...)
	if err != nil {
		return cfg, err
	}

	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	if flags.Changed("monitor") {
		cfg.Monitor, _ = flags.GetBool("monitor")
	}

	if flags.Changed("monitor-port") {
		cfg.MonitorPort, _ = flags.GetInt("monitor-port")
		cfg.Monitor = true
	}

	if open, _ := flags.GetBool("open-monitor"); open {
		cfg.Monitor = true
	}

	if flags.Changed("trace") {
		cfg.TracePath, _ = flags.GetString("trace")
	}

	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetInt64("seed")
	}

	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, _ := cfg.Level()

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.TimeOnly,
	}).Level(level).With().Timestamp().Logger()
}

// buildSimulation builds the simulation described by the flags of cmd.
func buildSimulation(cmd *cobra.Command) (*simulation.Simulation, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg)
	b := simulation.MakeBuilder().
		WithConfig(cfg).
		WithLogger(logger)

	if logEvents, _ := cmd.Flags().GetBool("log-events"); logEvents {
		b = b.WithEventLogging()
	}

	s := b.Build()

	atexit.Register(s.Terminate)

	if open, _ := cmd.Flags().GetBool("open-monitor"); open {
		if err := browser.OpenURL(s.MonitorURL()); err != nil {
			logger.Warn().Err(err).Msg("cannot open the monitor")
		}
	}

	logger.Info().
		Str("simulation", s.ID()).
		Str("monitor", s.MonitorURL()).
		Msg("simulation started")

	return s, nil
}

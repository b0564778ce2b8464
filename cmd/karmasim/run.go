package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/sarchlab/karma/future"
	"github.com/sarchlab/karma/monitoring"
	"github.com/sarchlab/karma/scenario"
	"github.com/sarchlab/karma/sensor"
	"github.com/sarchlab/karma/simulation"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the built-in radio scenario.",
	Long: "`run --rounds N` initializes a radio and sends one packet per " +
		"round. Every third round power cycles the radio and rebuilds its " +
		"state from the history.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rounds, _ := cmd.Flags().GetInt("rounds")
		withSensor, _ := cmd.Flags().GetBool("sensor")

		return runScenario(cmd, "default.star", scenario.DefaultScript,
			rounds, withSensor)
	},
}

func init() {
	runCmd.Flags().Int("rounds", 10, "Number of rounds")
	runCmd.Flags().Bool("sensor", false, "Also read a temperature sensor every round")
	rootCmd.AddCommand(runCmd)
}

func runScenario(
	cmd *cobra.Command,
	filename string,
	src any,
	rounds int,
	withSensor bool,
) error {
	s, err := buildSimulation(cmd)
	if err != nil {
		return err
	}
	defer s.Terminate()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	done := s.Go(ctx)

	runner := scenario.NewRunner(s.Spawner(), s.NewRadio()).
		WithLogger(s.Logger())

	var sn *sensor.Sensor
	if withSensor {
		sn = s.NewSensor()
	}

	var bar *monitoring.ProgressBar
	if m := s.Monitor(); m != nil {
		bar = m.CreateProgressBar("Rounds", uint64(rounds))
		defer m.CompleteProgressBar(bar)
	}

	for round := 0; round < rounds; round++ {
		if bar != nil {
			bar.IncrementInProgress(1)
		}

		if sn != nil {
			readSensor(s, sn)
		}

		runner.WithGlobal("round", round)
		if _, err := runner.Run(ctx, filename, src); err != nil {
			return err
		}

		if bar != nil {
			bar.MoveInProgressToFinished(1)
		}
	}

	s.Terminate()
	cancel()

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger := s.Logger()
	logger.Info().Int("rounds", rounds).Msg("scenario finished")

	return nil
}

// readSensor spawns a task that logs the next batch of readings, unless one
// is still waiting.
func readSensor(s *simulation.Simulation, sn *sensor.Sensor) {
	f, ok := sn.Read()
	if !ok {
		return
	}

	logger := s.Logger()
	s.Spawner().SpawnNamed("sensor read",
		future.Map[[]sensor.Temperature, future.Unit](f,
			func(temps []sensor.Temperature) future.Unit {
				for _, t := range temps {
					logger.Info().Float64("celsius", float64(t)).Msg("temperature")
				}

				return future.Unit{}
			}))
}

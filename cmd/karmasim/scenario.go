package main

import (
	"os"

	"github.com/spf13/cobra"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario FILE",
	Short: "Run a Starlark scenario script against a radio.",
	Long: "`scenario FILE --rounds N` runs FILE N times. The script sees " +
		"the radio builtins and the current `round`.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		rounds, _ := cmd.Flags().GetInt("rounds")
		withSensor, _ := cmd.Flags().GetBool("sensor")

		return runScenario(cmd, args[0], src, rounds, withSensor)
	},
}

func init() {
	scenarioCmd.Flags().Int("rounds", 1, "Number of times to run the script")
	scenarioCmd.Flags().Bool("sensor", false, "Also read a temperature sensor every round")
	rootCmd.AddCommand(scenarioCmd)
}

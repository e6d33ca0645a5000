/*
gridvi solves a windy 5x5 grid world by value iteration and samples trajectories of a fixed
policy in it. Problems are described by a config file (see config.yaml) for the solve and
trajectories commands, or by JSON requests to the serve command's HTTP endpoints.
*/

package main

import (
	"fmt"
	"log/slog"
	"os"

	"gridvi/logging"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "gridvi",
	Short:        "Value iteration and trajectory sampling for a windy 5x5 grid world",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("config", "config.yaml", "Path to a valueIteration config file")
}

// newLogger builds the logger named by the --log-level flag.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	name, _ := cmd.Flags().GetString("log-level")
	level, err := logging.ParseLevel(name)
	if err != nil {
		return nil, err
	}
	return logging.New(level), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"strings"

	"gridvi/reinforcement"

	"github.com/spf13/cobra"
)

var trajectoriesCmd = &cobra.Command{
	Use:   "trajectories",
	Short: "Sample trajectories of the configured policy",
	Long: `Samples 50 trajectories of 10 steps of the config's policy under its wind, printing one
trajectory of 1-based cells per line. The seed and workers hyper-parameters make the sample
reproducible; --workers overrides the configured parallelism.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("config")
		cfg, err := reinforcement.FromYaml(path)
		if err != nil {
			return err
		}

		nworkers := int(cfg.GetHyperParamOrDefault("workers", 0))
		if cmd.Flags().Changed("workers") {
			nworkers, _ = cmd.Flags().GetInt("workers")
		}
		seed := int64(cfg.GetHyperParamOrDefault("seed", 1))

		ctx, cancel, err := cfg.WithSolveDeadline(cmd.Context())
		if err != nil {
			return err
		}
		defer cancel()

		sampler := reinforcement.DefaultSampler()
		flat, err := sampler.SampleParallel(ctx, cfg.Policy, cfg.Obstacles, cfg.Wind(), seed, nworkers)
		if err != nil {
			return err
		}
		logger.Info("sampled trajectories", "count", sampler.Trajectories, "steps", sampler.Steps, "seed", seed)

		out := cmd.OutOrStdout()
		for _, traj := range reinforcement.Split(flat, sampler.Steps) {
			fmt.Fprintln(out, strings.Trim(fmt.Sprint(traj), "[]"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trajectoriesCmd)
	trajectoriesCmd.Flags().Int("workers", 0, "Sampler goroutines; 0 uses the number of CPUs")
}

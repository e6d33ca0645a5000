package main

import (
	"fmt"
	"io"

	. "gridvi/grid_world"
	"gridvi/reinforcement"

	"github.com/spf13/cobra"
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run value iteration on the configured grid world",
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
		opts, err := cfg.Options()
		if err != nil {
			return err
		}
		opts.Logger = logger

		solver, err := reinforcement.NewSolver(opts)
		if err != nil {
			return err
		}
		ctx, cancel, err := cfg.WithSolveDeadline(cmd.Context())
		if err != nil {
			return err
		}
		defer cancel()

		res, err := solver.Solve(ctx)
		if err != nil {
			return err
		}
		policy, err := res.GreedyPolicy(0)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Converged in %d iterations (residual %.4g)\n", res.Iterations, res.Residual)
		fmt.Fprintln(out, "Values:")
		showValues(out, res.Values)
		fmt.Fprintln(out, "Greedy policy:")
		showPolicy(out, policy, opts.Obstacles)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(solveCmd)
}

// showValues prints the value vector as the grid, top row first.
func showValues(out io.Writer, values []float64) {
	for row := 0; row < Rows; row++ {
		fmt.Fprint(out, " ")
		for col := 0; col < Cols; col++ {
			fmt.Fprintf(out, "%8.2f ", values[row*Cols+col])
		}
		fmt.Fprintln(out)
	}
}

// showPolicy prints each cell's greedy actions as arrows; obstacles print as #.
func showPolicy(out io.Writer, policy []int, obstacles []int) {
	blocked, _ := NewObstacles(obstacles)
	arrows := map[Action]string{Up: "^", Down: "v", Left: "<", Right: ">"}
	for row := 0; row < Rows; row++ {
		fmt.Fprint(out, " ")
		for col := 0; col < Cols; col++ {
			cell := row*Cols + col
			glyph := "#"
			if !blocked.Contains(cell) {
				glyph = ""
				actions, _ := DecodePolicyCode(policy[cell])
				for _, a := range actions {
					glyph += arrows[a]
				}
			}
			fmt.Fprintf(out, "%-5s", glyph)
		}
		fmt.Fprintln(out)
	}
}

package reinforcement

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "gridvi/grid_world"

	. "github.com/smartystreets/goconvey/convey"
)

const testConfig = `
kind: valueIteration
def:
  hyperParams:
    - key: wind
      val: 0.9
    - key: beta
      val: 0.9
    - key: maxIterations
      val: 500
    - key: workers
      val: 2
  backup: soft
  endCell: 25
  obstacles: [7, 13]
  reward: [0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 10]
  solveDeadline:
    duration: 5s
`

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFromYaml(t *testing.T) {
	Convey("Given a value iteration config file", t, func() {
		cfg, err := FromYaml(writeConfig(t, testConfig))
		So(err, ShouldBeNil)

		Convey("The definition is decoded regardless of key case", func() {
			So(cfg.Backup, ShouldEqual, "soft")
			So(cfg.EndCell, ShouldEqual, 25)
			So(cfg.Obstacles, ShouldResemble, []int{7, 13})
			So(len(cfg.Reward), ShouldEqual, NumCells)
			So(cfg.GetHyperParamOrDefault("workers", 0), ShouldEqual, 2)
			So(cfg.GetHyperParamOrDefault("seed", 17), ShouldEqual, 17)
			So(cfg.Wind(), ShouldEqual, 0.9)
		})

		Convey("The solver options carry the hyper-parameters and defaults", func() {
			opts, err := cfg.Options()
			So(err, ShouldBeNil)
			So(opts.Backup, ShouldEqual, BackupSoft)
			So(opts.Beta, ShouldEqual, 0.9)
			So(opts.MaxIterations, ShouldEqual, 500)
			So(opts.Tolerance, ShouldEqual, DefaultTolerance)
			So(opts.Wind.Intended, ShouldEqual, 0.9)

			solver, err := NewSolver(opts)
			So(err, ShouldBeNil)
			res, err := solver.Solve(context.Background())
			So(err, ShouldBeNil)
			// The absorbing goal keeps only its reward, softened over four equal actions.
			So(res.Values[NumCells-1], ShouldAlmostEqual, 10+math.Log(NumActions)/DefaultSharpness, 1e-9)
		})

		Convey("The solve deadline bounds the context", func() {
			ctx, cancel, err := cfg.WithSolveDeadline(context.Background())
			So(err, ShouldBeNil)
			defer cancel()
			deadline, ok := ctx.Deadline()
			So(ok, ShouldBeTrue)
			So(time.Until(deadline), ShouldBeLessThanOrEqualTo, 5*time.Second)
		})
	})

	Convey("Given a config without a wind", t, func() {
		cfg := &SolveConfig{}
		opts, err := cfg.Options()
		So(err, ShouldBeNil)
		So(opts.Wind, ShouldResemble, LegacyWind)
		So(cfg.Wind(), ShouldEqual, LegacyWind.Intended)

		ctx, cancel, err := cfg.WithSolveDeadline(context.Background())
		So(err, ShouldBeNil)
		defer cancel()
		_, ok := ctx.Deadline()
		So(ok, ShouldBeFalse)
	})

	Convey("Given malformed configs", t, func() {
		_, err := FromYaml(writeConfig(t, "kind: qLearning\ndef: {}\n"))
		So(errors.Is(err, ErrInvalidParameter), ShouldBeTrue)

		_, err = FromYaml(filepath.Join(t.TempDir(), "missing.yaml"))
		So(err, ShouldNotBeNil)

		cfg := &SolveConfig{Backup: "medium"}
		_, err = cfg.Options()
		So(errors.Is(err, ErrUnknownBackup), ShouldBeTrue)

		cfg = &SolveConfig{SolveDeadline: map[string]string{"duration": "soon"}}
		_, _, err = cfg.WithSolveDeadline(context.Background())
		So(err, ShouldNotBeNil)
	})
}

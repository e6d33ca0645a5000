package server

import (
	"errors"
	"time"

	"gridvi/atomic_float"
	"gridvi/reinforcement"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics records solver and sampler activity. The float telemetry is written by solve
// goroutines (per streamed iteration) while scrapes read it, hence the atomic cells.
type metrics struct {
	solves       *prometheus.CounterVec
	iterations   prometheus.Histogram
	trajectories prometheus.Counter
	lastResidual atomic_float.Float64
	solveSeconds atomic_float.Float64
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		solves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridvi_solves_total",
				Help: "Total number of value iteration solves, by backup and outcome",
			},
			[]string{"backup", "outcome"},
		),
		iterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gridvi_solve_iterations",
				Help:    "Backups performed by converged solves",
				Buckets: prometheus.ExponentialBuckets(8, 2, 10),
			},
		),
		trajectories: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gridvi_trajectories_total",
				Help: "Total number of sampled trajectories",
			},
		),
	}

	reg.MustRegister(
		m.solves,
		m.iterations,
		m.trajectories,
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "gridvi_last_residual",
				Help: "Max-norm residual of the most recent backup",
			},
			m.lastResidual.Load,
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "gridvi_solve_seconds_total",
				Help: "Wall time spent solving",
			},
			m.solveSeconds.Load,
		),
	)
	return m
}

// observeSolve records a finished solve.
func (m *metrics) observeSolve(backup reinforcement.BackupKind, res *reinforcement.Result, err error, elapsed time.Duration) {
	m.solveSeconds.Add(elapsed.Seconds())
	outcome := "converged"
	switch {
	case errors.Is(err, reinforcement.ErrNonConvergence):
		outcome = "non_convergent"
	case err != nil:
		outcome = "error"
	}
	m.solves.WithLabelValues(string(backup), outcome).Inc()
	if res != nil {
		m.iterations.Observe(float64(res.Iterations))
		m.lastResidual.Store(res.Residual)
	}
}

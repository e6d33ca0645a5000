package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	. "gridvi/grid_world"
	"gridvi/reinforcement"
)

// ErrMalformedRequest is returned for bodies that are not valid request JSON.
var ErrMalformedRequest error = errors.New("malformed request")

// SolveRequest is the body of a value iteration request. Cells are 1-based. Zero-valued
// scalars select the solver defaults; a missing wind selects the legacy fixed wind.
type SolveRequest struct {
	Reward        []float64 `json:"reward"`
	Obstacles     []int     `json:"obstacles"`
	EndCell       int       `json:"endCell"`
	Wind          *float64  `json:"wind"`
	Beta          float64   `json:"beta"`
	Backup        string    `json:"backup"`
	Tolerance     float64   `json:"tolerance"`
	MaxIterations int       `json:"maxIterations"`
	Sharpness     float64   `json:"sharpness"`
}

func (req *SolveRequest) options() (opts reinforcement.Options, err error) {
	opts = reinforcement.Options{
		Reward:        req.Reward,
		Obstacles:     req.Obstacles,
		EndCell:       req.EndCell,
		Beta:          req.Beta,
		Tolerance:     req.Tolerance,
		MaxIterations: req.MaxIterations,
		Sharpness:     req.Sharpness,
		Wind:          LegacyWind,
	}
	if opts.Backup, err = reinforcement.ParseBackup(req.Backup); err != nil {
		return
	}
	if req.Wind != nil {
		opts.Wind, err = NewWind(*req.Wind)
	}
	return
}

// SolveResponse carries a converged solve. Flat is Values followed by Q row-major; Policy is
// the greedy policy code of each cell.
type SolveResponse struct {
	Values     []float64   `json:"values"`
	Q          [][]float64 `json:"q"`
	Flat       []float64   `json:"flat"`
	Iterations int         `json:"iterations"`
	Residual   float64     `json:"residual"`
	Policy     []int       `json:"policy"`
}

func newSolveResponse(res *reinforcement.Result) (*SolveResponse, error) {
	policy, err := res.GreedyPolicy(0)
	if err != nil {
		return nil, err
	}
	return &SolveResponse{
		Values:     res.Values,
		Q:          res.QRows(),
		Flat:       res.Flatten(),
		Iterations: res.Iterations,
		Residual:   res.Residual,
		Policy:     policy,
	}, nil
}

// TrajectoryRequest is the body of a sampling request. Workers defaults to, and is capped at,
// the server's parallelism; a missing wind selects the legacy intended-action probability.
type TrajectoryRequest struct {
	Policy    []int    `json:"policy"`
	Obstacles []int    `json:"obstacles"`
	Wind      *float64 `json:"wind"`
	Seed      int64    `json:"seed"`
	Workers   int      `json:"workers"`
}

// TrajectoryResponse holds the sampled 1-based cells, both split per trajectory and flat.
type TrajectoryResponse struct {
	Trajectories [][]int `json:"trajectories"`
	Flat         []int   `json:"flat"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// solve runs one bounded solve and records it.
func (server *Server) solve(ctx context.Context, opts reinforcement.Options) (*reinforcement.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	opts.Logger = server.logger
	solver, err := reinforcement.NewSolver(opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := solver.Solve(ctx)
	server.metrics.observeSolve(opts.Backup, res, err, time.Since(start))
	return res, err
}

func (server *Server) serveSolve(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if err := decodeJSON(r, &req); err != nil {
		server.writeError(w, err)
		return
	}
	opts, err := req.options()
	if err != nil {
		server.writeError(w, err)
		return
	}
	res, err := server.solve(r.Context(), opts)
	if err != nil {
		server.writeError(w, err)
		return
	}
	resp, err := newSolveResponse(res)
	if err != nil {
		server.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (server *Server) serveTrajectories(w http.ResponseWriter, r *http.Request) {
	var req TrajectoryRequest
	if err := decodeJSON(r, &req); err != nil {
		server.writeError(w, err)
		return
	}
	wind := LegacyWind.Intended
	if req.Wind != nil {
		wind = *req.Wind
	}
	// Clients may ask for less parallelism than the server's, never more.
	nworkers := req.Workers
	if nworkers <= 0 || nworkers > server.nworkers {
		nworkers = server.nworkers
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	sampler := reinforcement.DefaultSampler()
	flat, err := sampler.SampleParallel(ctx, req.Policy, req.Obstacles, wind, req.Seed, nworkers)
	if err != nil {
		server.writeError(w, err)
		return
	}
	server.metrics.trajectories.Add(float64(sampler.Trajectories))

	writeJSON(w, http.StatusOK, &TrajectoryResponse{
		Trajectories: reinforcement.Split(flat, sampler.Steps),
		Flat:         flat,
	})
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (server *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		server.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps caller mistakes to 400, a solve that never settles to 422, and a request
// that ran out of time to 503.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMalformedRequest),
		errors.Is(err, ErrInvalidDimension),
		errors.Is(err, ErrInvalidCellIndex),
		errors.Is(err, ErrInvalidActionCode),
		errors.Is(err, ErrInvalidParameter),
		errors.Is(err, ErrNoOpenCell),
		errors.Is(err, reinforcement.ErrUnknownBackup):
		return http.StatusBadRequest
	case errors.Is(err, reinforcement.ErrNonConvergence):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

package reinforcement

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	. "gridvi/grid_world"

	channerics "github.com/niceyeti/channerics/channels"
)

// Sampler simulates a fixed policy under the wind. Trajectories and Steps are configuration,
// not inputs; DefaultSampler returns the standard 50x10.
type Sampler struct {
	Trajectories int
	Steps        int
}

const (
	defaultTrajectories = 50
	defaultSteps        = 10
)

// DefaultSampler returns a sampler of 50 trajectories of 10 steps.
func DefaultSampler() Sampler {
	return Sampler{Trajectories: defaultTrajectories, Steps: defaultSteps}
}

// GenerateTrajectories samples DefaultSampler trajectories. See Sampler.Sample.
func GenerateTrajectories(policy []int, obstacles []int, wind float64, rng *rand.Rand) ([]int, error) {
	return DefaultSampler().Sample(policy, obstacles, wind, rng)
}

func (s Sampler) validate() error {
	if s.Trajectories <= 0 || s.Steps <= 0 {
		return fmt.Errorf("%w: sampler shape %dx%d must be positive", ErrInvalidParameter, s.Trajectories, s.Steps)
	}
	return nil
}

// workers bounds the requested parallelism: NumCPU if nworkers <= 0, and never more
// goroutines than there are trajectories to sample.
func (s Sampler) workers(nworkers int) int {
	if nworkers <= 0 {
		nworkers = runtime.NumCPU()
	}
	return min(nworkers, s.Trajectories)
}

// rollout is the validated, decoded form of a sampler's inputs.
type rollout struct {
	intended   [NumCells][]Action
	complement [NumCells][]Action
	obstacles  Obstacles
	wind       float64
}

func newRollout(policy []int, obstacles []int, wind float64) (*rollout, error) {
	if err := ValidatePolicy(policy); err != nil {
		return nil, err
	}
	if !(wind >= 0 && wind <= 1) {
		return nil, fmt.Errorf("%w: wind %v not in [0,1]", ErrInvalidParameter, wind)
	}
	obs, err := NewObstacles(obstacles)
	if err != nil {
		return nil, err
	}
	if obs.Len() == NumCells {
		return nil, fmt.Errorf("%w: all %d cells are obstacles", ErrNoOpenCell, NumCells)
	}

	ro := &rollout{obstacles: obs, wind: wind}
	for i, code := range policy {
		// Already validated, so decoding cannot fail.
		ro.intended[i], _ = DecodePolicyCode(code)
		ro.complement[i] = Complement(ro.intended[i])
		// A cell that ties all four actions has nothing to drift to.
		if len(ro.complement[i]) == 0 {
			ro.complement[i] = ro.intended[i]
		}
	}
	return ro, nil
}

// start draws 1-based cells uniformly until one is not an obstacle.
func (ro *rollout) start(rng *rand.Rand) int {
	cell := rng.Intn(NumCells) + 1
	for ro.obstacles.Contains(cell - 1) {
		cell = rng.Intn(NumCells) + 1
	}
	return cell
}

// trajectory writes the 1-based cell reached after each step into out.
func (ro *rollout) trajectory(rng *rand.Rand, out []int) {
	cell := ro.start(rng)
	for t := range out {
		i := cell - 1
		candidates := ro.intended[i]
		if rng.Float64() >= ro.wind {
			candidates = ro.complement[i]
		}
		action := candidates[rng.Intn(len(candidates))]
		cell = ToOneBased(Successors(i, &ro.obstacles)[action.Index()])
		out[t] = cell
	}
}

// Sample simulates the policy (one code per 1-based cell, see DecodePolicyCode) from uniformly
// random open start cells. At each step, with probability wind the realized action is drawn
// uniformly from the cell's intended set, and otherwise from its complement. The result holds the
// 1-based cell after every step, trajectory-major then step-major. The start cell is not recorded.
func (s Sampler) Sample(policy []int, obstacles []int, wind float64, rng *rand.Rand) ([]int, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	ro, err := newRollout(policy, obstacles, wind)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidParameter)
	}

	out := make([]int, s.Trajectories*s.Steps)
	for n := 0; n < s.Trajectories; n++ {
		ro.trajectory(rng, out[n*s.Steps:(n+1)*s.Steps])
	}
	return out, nil
}

type sampled struct {
	index int
	cells []int
}

// SampleParallel is Sample spread over nworkers goroutines (NumCPU if nworkers <= 0, at most
// one per trajectory). Each trajectory draws from its own generator seeded from (seed, index),
// so the output depends only on the inputs and seed, never on the worker count or scheduling.
func (s Sampler) SampleParallel(
	ctx context.Context,
	policy []int,
	obstacles []int,
	wind float64,
	seed int64,
	nworkers int,
) ([]int, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	ro, err := newRollout(policy, obstacles, wind)
	if err != nil {
		return nil, err
	}
	nworkers = s.workers(nworkers)

	done := ctx.Done()
	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for n := 0; n < s.Trajectories; n++ {
			select {
			case jobs <- n:
			case <-done:
				return
			}
		}
	}()

	worker := func() <-chan sampled {
		results := make(chan sampled)
		go func() {
			defer close(results)
			for n := range jobs {
				rng := rand.New(rand.NewSource(trajectorySeed(seed, n)))
				cells := make([]int, s.Steps)
				ro.trajectory(rng, cells)
				select {
				case results <- sampled{index: n, cells: cells}:
				case <-done:
					return
				}
			}
		}()
		return results
	}

	workers := []<-chan sampled{}
	for i := 0; i < nworkers; i++ {
		workers = append(workers, worker())
	}

	out := make([]int, s.Trajectories*s.Steps)
	received := 0
	for res := range channerics.Merge(done, workers...) {
		copy(out[res.index*s.Steps:], res.cells)
		received++
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if received != s.Trajectories {
		return nil, fmt.Errorf("sampled %d of %d trajectories", received, s.Trajectories)
	}
	return out, nil
}

// trajectorySeed derives a per-trajectory seed with the splitmix64 finalizer, so neighbouring
// indices get unrelated streams.
func trajectorySeed(seed int64, index int) int64 {
	z := uint64(seed) + uint64(index+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}

// Split cuts a flattened sample into one slice per trajectory.
func Split(flat []int, steps int) (trajectories [][]int) {
	if steps <= 0 {
		return nil
	}
	for start := 0; start+steps <= len(flat); start += steps {
		trajectories = append(trajectories, flat[start:start+steps])
	}
	return
}

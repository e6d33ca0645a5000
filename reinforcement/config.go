package reinforcement

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	. "gridvi/grid_world"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ConfigKind is the only outer config kind this package understands.
const ConfigKind = "valueIteration"

// OuterConfig is the config envelope: a kind selector and its definition.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// SolveConfig encodes a grid world and its solver and sampler parameters outside of code.
// Viper folds every key to lower case before the definition reaches yaml.v3, so the tags are
// lower case and config files may spell keys in any case (hyperParams, endCell, ...).
type SolveConfig struct {
	// HyperParams is a key-val list of scalar params: wind, beta, tolerance, maxIterations,
	// sharpness, seed, workers.
	HyperParams []HyperParameter `yaml:"hyperparams"`
	// Backup is "hard" or "soft".
	Backup string `yaml:"backup"`
	// EndCell is a 1-based absorbing cell, 0 for none.
	EndCell int `yaml:"endcell"`
	// Obstacles are 1-based blocked cells.
	Obstacles []int `yaml:"obstacles"`
	// Reward holds one reward per cell, row-major.
	Reward []float64 `yaml:"reward"`
	// Policy holds one policy code per cell, for sampling.
	Policy []int `yaml:"policy"`
	// SolveDeadline is a duration bounding a solve, e.g. {duration: 10s}.
	SolveDeadline map[string]string `yaml:"solvedeadline"`
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

func (cfg *SolveConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// Options converts the config into solver options. The wind hyper-parameter is optional;
// without it the legacy fixed wind is used.
func (cfg *SolveConfig) Options() (opts Options, err error) {
	opts = Options{
		Reward:        cfg.Reward,
		Obstacles:     cfg.Obstacles,
		EndCell:       cfg.EndCell,
		Beta:          cfg.GetHyperParamOrDefault("beta", DefaultBeta),
		Tolerance:     cfg.GetHyperParamOrDefault("tolerance", DefaultTolerance),
		Sharpness:     cfg.GetHyperParamOrDefault("sharpness", DefaultSharpness),
		MaxIterations: int(cfg.GetHyperParamOrDefault("maxIterations", DefaultMaxIterations)),
	}
	if opts.Backup, err = ParseBackup(cfg.Backup); err != nil {
		return
	}
	opts.Wind = LegacyWind
	if w := cfg.GetHyperParamOrDefault("wind", -1); w != -1 {
		opts.Wind, err = NewWind(w)
	}
	return
}

// Wind returns the sampler wind, defaulting to the legacy intended-action probability.
func (cfg *SolveConfig) Wind() float64 {
	return cfg.GetHyperParamOrDefault("wind", LegacyWind.Intended)
}

// WithSolveDeadline returns a context extended by the solve deadline, if one is specified.
func (cfg *SolveConfig) WithSolveDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.SolveDeadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, fmt.Errorf("solve deadline: %w", err)
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads a config file shaped as {kind: valueIteration, def: {...}}. Viper handles the
// envelope; the definition is re-marshaled and decoded with yaml.v3 so its field tags apply.
func FromYaml(path string) (*SolveConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if outerConfig.Kind != ConfigKind {
		return nil, fmt.Errorf("%w: config kind %q, want %q", ErrInvalidParameter, outerConfig.Kind, ConfigKind)
	}

	var def []byte
	if def, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, fmt.Errorf("encode config def: %w", err)
	}

	innerConfig := &SolveConfig{}
	if err = yaml.Unmarshal(def, innerConfig); err != nil {
		return nil, fmt.Errorf("decode config def: %w", err)
	}

	return innerConfig, nil
}

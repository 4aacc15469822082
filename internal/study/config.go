// Package study runs the exploratory pipeline: sample the feasible box,
// evaluate the surface, promote the most promising samples to starts, and
// optimize each start locally on a bounded worker pool.
package study

import (
	"fmt"
	"os"
	"runtime"

	"github.com/ghodss/yaml"

	"github.com/costrisk/costrisk/internal/sample"
	"github.com/costrisk/costrisk/internal/surface"
)

// Config describes a study: how the box is sampled, how many local runs are
// launched, and which backend optimizes them. The JSON tags double as the
// YAML study-file schema and the HTTP API schema.
type Config struct {
	// Name labels the study in logs and stored artifacts.
	Name string `json:"name,omitempty"`

	// Samples is the number of space-filling samples drawn from the box.
	Samples int `json:"samples"`
	// Starts is the number of best samples promoted to local runs.
	Starts int `json:"starts"`
	// Workers bounds the number of concurrent local runs.
	Workers int `json:"workers"`
	// Seed drives sampling and the population backend.
	Seed int64 `json:"seed"`
	// Strategy selects the sampler: lhs, uniform or grid.
	Strategy string `json:"strategy"`

	// Method selects the optimizer backend: bfgs, neldermead or mayfly.
	Method string `json:"method"`
	// MaxIters caps the iterations of each local run.
	MaxIters int `json:"maxIters"`
	// Tol is the gradient threshold for the gonum backends.
	Tol float64 `json:"tol"`
	// PopSize is the population size for the mayfly backend, minimum 20.
	PopSize int `json:"popSize,omitempty"`

	// Surface overrides the canonical quadratic coefficients.
	Surface *surface.Quadratic `json:"surface,omitempty"`
	// Bounds overrides the default box.
	Bounds *BoundsSpec `json:"bounds,omitempty"`

	// Convergence controls early stop across completed runs. Nil means the
	// default (enabled) settings.
	Convergence *ConvergenceConfig `json:"convergence,omitempty"`

	// CheckpointEvery saves a checkpoint after every k completed runs when
	// the study is persisted. Zero disables periodic saves.
	CheckpointEvery int `json:"checkpointEvery,omitempty"`
}

// BoundsSpec names the per-variable intervals the way study files spell
// them out.
type BoundsSpec struct {
	Cost [2]float64 `json:"cost"`
	Risk [2]float64 `json:"risk"`
}

// ToBounds converts the named intervals into a box.
func (s BoundsSpec) ToBounds() surface.Bounds {
	return surface.Bounds{
		Lower: []float64{s.Cost[0], s.Risk[0]},
		Upper: []float64{s.Cost[1], s.Risk[1]},
	}
}

// DefaultConfig returns the canonical study setup.
func DefaultConfig() Config {
	conv := DefaultConvergenceConfig()
	return Config{
		Samples:     120,
		Starts:      8,
		Workers:     runtime.NumCPU(),
		Seed:        1,
		Strategy:    "lhs",
		Method:      "bfgs",
		MaxIters:    200,
		Tol:         1e-8,
		PopSize:     30,
		Convergence: &conv,
	}
}

// LoadConfig reads a study definition from a YAML (or JSON) file. Fields
// left out of the file are filled by ApplyDefaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read study file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse study file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields in place.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.Samples == 0 {
		c.Samples = def.Samples
	}
	if c.Starts == 0 {
		c.Starts = def.Starts
	}
	if c.Workers == 0 {
		c.Workers = def.Workers
	}
	if c.Seed == 0 {
		c.Seed = def.Seed
	}
	if c.Strategy == "" {
		c.Strategy = def.Strategy
	}
	if c.Method == "" {
		c.Method = def.Method
	}
	if c.MaxIters == 0 {
		c.MaxIters = def.MaxIters
	}
	if c.Tol == 0 {
		c.Tol = def.Tol
	}
	if c.PopSize == 0 {
		c.PopSize = def.PopSize
	}
	if c.Convergence == nil {
		c.Convergence = def.Convergence
	} else if c.Convergence.Enabled {
		if c.Convergence.Patience == 0 {
			c.Convergence.Patience = def.Convergence.Patience
		}
		if c.Convergence.Threshold == 0 {
			c.Convergence.Threshold = def.Convergence.Threshold
		}
	}
}

// Validate checks the config after defaults were applied.
func (c Config) Validate() error {
	if c.Samples <= 0 {
		return fmt.Errorf("samples must be positive, got %d", c.Samples)
	}
	if c.Starts <= 0 {
		return fmt.Errorf("starts must be positive, got %d", c.Starts)
	}
	if c.Starts > c.Samples {
		return fmt.Errorf("starts %d exceeds samples %d", c.Starts, c.Samples)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if _, ok := sample.ByName(c.Strategy, 0); !ok {
		return fmt.Errorf("unknown sampling strategy %q", c.Strategy)
	}
	switch c.Method {
	case "bfgs", "neldermead", "mayfly":
	default:
		return fmt.Errorf("unknown method %q (want bfgs, neldermead or mayfly)", c.Method)
	}
	if c.MaxIters <= 0 {
		return fmt.Errorf("maxIters must be positive, got %d", c.MaxIters)
	}
	if c.Method == "mayfly" && c.PopSize < 20 {
		return fmt.Errorf("mayfly needs a population of at least 20, got %d", c.PopSize)
	}
	if c.Bounds != nil {
		if err := c.Bounds.ToBounds().Validate(); err != nil {
			return fmt.Errorf("invalid bounds: %w", err)
		}
	}
	return nil
}

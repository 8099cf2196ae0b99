package config

import (
	"fmt"
	"os"

	"github.com/cuemby/awesim/pkg/types"
	"gopkg.in/yaml.v3"
)

// DefaultLookahead is the minimum scheduling offset between LPs, in
// simulated seconds. It doubles as the causal-safety floor: offsets
// below it are a programming error.
const DefaultLookahead = 1e-3

// DefaultEndTime bounds the simulation at one simulated year.
const DefaultEndTime = 60 * 60 * 24 * 365.0

// NetworkConfig describes one point-to-point network model. The
// simulator requires exactly one, of the simple-wan kind.
type NetworkConfig struct {
	Model         string  `yaml:"model"`
	Latency       float64 `yaml:"latency"`        // per-message startup cost, seconds
	BandwidthMbps float64 `yaml:"bandwidth_mbps"` // link bandwidth, megabits per second
}

// WorkerPool places a number of workers into a named group. Group
// membership is explicit here rather than inferred from LP id ranges.
type WorkerPool struct {
	Group types.WorkerGroup `yaml:"group"`
	Count int               `yaml:"count"`
}

// PipelineConfig mirrors types.Pipeline for the config file.
type PipelineConfig struct {
	Name     string   `yaml:"name"`
	NumTasks int      `yaml:"num_tasks"`
	Deps     [][2]int `yaml:"deps"`
}

// Config is the parsed codes-config file.
type Config struct {
	Lookahead     float64          `yaml:"lookahead"`
	EndTime       float64          `yaml:"end_time"`
	Networks      []NetworkConfig  `yaml:"networks"`
	Workers       []WorkerPool     `yaml:"workers"`
	AffinityStage int              `yaml:"affinity_stage"`
	Pipelines     []PipelineConfig `yaml:"pipelines"`
}

// Load reads and validates a codes-config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{
		Lookahead:     DefaultLookahead,
		EndTime:       DefaultEndTime,
		AffinityStage: 5,
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the structural invariants the simulator relies on.
func (c *Config) Validate() error {
	if len(c.Networks) != 1 {
		return fmt.Errorf("expected exactly one network, got %d", len(c.Networks))
	}
	if c.Networks[0].Model != "simple-wan" {
		return fmt.Errorf("unsupported network model %q: only simple-wan is supported", c.Networks[0].Model)
	}
	if c.Networks[0].BandwidthMbps <= 0 {
		return fmt.Errorf("network bandwidth_mbps must be positive")
	}
	if c.Lookahead <= 0 {
		return fmt.Errorf("lookahead must be positive")
	}
	if len(c.Workers) == 0 {
		return fmt.Errorf("at least one worker pool is required")
	}
	for _, p := range c.Workers {
		if p.Count <= 0 {
			return fmt.Errorf("worker pool %q must have a positive count", p.Group)
		}
		if p.Group != types.GroupLocal && p.Group != types.GroupRemote {
			return fmt.Errorf("unknown worker group %q", p.Group)
		}
	}
	for _, p := range c.Pipelines {
		if p.NumTasks <= 0 {
			return fmt.Errorf("pipeline %q must have a positive num_tasks", p.Name)
		}
	}
	return nil
}

// Network returns the single configured network model.
func (c *Config) Network() NetworkConfig {
	return c.Networks[0]
}

// TotalWorkers is the worker LP population across all pools.
func (c *Config) TotalWorkers() int {
	n := 0
	for _, p := range c.Workers {
		n += p.Count
	}
	return n
}

// PipelineMap returns the configured pipelines keyed by name, with the
// embedded MG-RAST pipeline always present as the default.
func (c *Config) PipelineMap() map[string]types.Pipeline {
	m := map[string]types.Pipeline{
		types.MGRASTPipeline.Name: types.MGRASTPipeline,
	}
	for _, p := range c.Pipelines {
		m[p.Name] = types.Pipeline{Name: p.Name, NumTasks: p.NumTasks, Deps: p.Deps}
	}
	return m
}

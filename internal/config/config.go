package config

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/chef"
	"gopkg.in/yaml.v3"
)

// SearcherType names a pending-path selection strategy.
type SearcherType string

const (
	SearcherDFS      SearcherType = "dfs"
	SearcherBFS      SearcherType = "bfs"
	SearcherRandom   SearcherType = "random"
	SearcherWeighted SearcherType = "weighted"
)

// Config holds all configuration for chef.
type Config struct {
	// Terminate the session at the first error path.
	StopOnError bool `yaml:"stop_on_error" env:"CHEF_STOP_ON_ERROR"`

	// Interval between periodic tree and CFG dumps. Zero disables them.
	TreeDumpInterval time.Duration `yaml:"tree_dump_interval" env:"CHEF_TREE_DUMP_INTERVAL"`

	// Per-path and per-session time limits. Zero disables them.
	PathTimeout    time.Duration `yaml:"path_timeout" env:"CHEF_PATH_TIMEOUT"`
	SessionTimeout time.Duration `yaml:"session_timeout" env:"CHEF_SESSION_TIMEOUT"`

	// Append distance details to every test case.
	ExtraDetails bool `yaml:"extra_details" env:"CHEF_EXTRA_DETAILS"`

	// Pending-path selection strategy and the seed of randomized ones.
	Searcher SearcherType `yaml:"searcher" env:"CHEF_SEARCHER"`
	Seed     int64        `yaml:"seed" env:"CHEF_SEED"`

	// Directory receiving test cases and dumps.
	OutputDir string `yaml:"output_dir" env:"CHEF_OUTPUT_DIR"`

	// Logging
	Verbose bool `yaml:"verbose" env:"CHEF_VERBOSE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		StopOnError:      false,
		TreeDumpInterval: chef.DefaultTreeDumpInterval,
		PathTimeout:      0,
		SessionTimeout:   0,
		ExtraDetails:     false,
		Searcher:         SearcherDFS,
		Seed:             0,
		OutputDir:        "chef-out",
		Verbose:          false,
	}
}

// globalConfigFilePath returns the global config file path (~/.chef/config.yaml)
func globalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chef/config.yaml"
	}
	return filepath.Join(home, ".chef", "config.yaml")
}

// projectConfigFilePath returns the project-level config file path (./.chef/config.yaml)
func projectConfigFilePath() string {
	return ".chef/config.yaml"
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.chef/config.yaml)
// 3. Global config (~/.chef/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{globalConfigFilePath(), projectConfigFilePath()} {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("CHEF_STOP_ON_ERROR"); v != "" {
		cfg.StopOnError = parseBool(v)
	}
	for _, o := range []struct {
		name string
		dst  *time.Duration
	}{
		{"CHEF_TREE_DUMP_INTERVAL", &cfg.TreeDumpInterval},
		{"CHEF_PATH_TIMEOUT", &cfg.PathTimeout},
		{"CHEF_SESSION_TIMEOUT", &cfg.SessionTimeout},
	} {
		if v := os.Getenv(o.name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", o.name, err)
			}
			*o.dst = d
		}
	}
	if v := os.Getenv("CHEF_EXTRA_DETAILS"); v != "" {
		cfg.ExtraDetails = parseBool(v)
	}
	if v := os.Getenv("CHEF_SEARCHER"); v != "" {
		cfg.Searcher = SearcherType(v)
	}
	if v := os.Getenv("CHEF_SEED"); v != "" {
		var seed int64
		if _, err := fmt.Sscanf(v, "%d", &seed); err != nil {
			return fmt.Errorf("invalid CHEF_SEED: %w", err)
		}
		cfg.Seed = seed
	}
	if v := os.Getenv("CHEF_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("CHEF_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
	return nil
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	switch c.Searcher {
	case SearcherDFS, SearcherBFS, SearcherRandom, SearcherWeighted:
	default:
		return fmt.Errorf("invalid searcher: %s (must be 'dfs', 'bfs', 'random' or 'weighted')", c.Searcher)
	}

	if c.TreeDumpInterval < 0 {
		return fmt.Errorf("tree_dump_interval must be non-negative")
	}
	if c.PathTimeout < 0 {
		return fmt.Errorf("path_timeout must be non-negative")
	}
	if c.SessionTimeout < 0 {
		return fmt.Errorf("session_timeout must be non-negative")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	return nil
}

// SessionConfig returns the session settings of the configuration.
func (c *Config) SessionConfig() chef.SessionConfig {
	return chef.SessionConfig{
		StopOnError:      c.StopOnError,
		TreeDumpInterval: c.TreeDumpInterval,
		PathTimeout:      c.PathTimeout,
		ExtraDetails:     c.ExtraDetails,
	}
}

// NewSearcher returns the configured pending-path searcher.
func (c *Config) NewSearcher(monitor *chef.InterpreterMonitor) chef.Searcher {
	switch c.Searcher {
	case SearcherBFS:
		return chef.NewBFSSearcher()
	case SearcherRandom:
		return chef.NewRandomSearcher(rand.New(rand.NewSource(c.Seed)))
	case SearcherWeighted:
		return chef.NewWeightedSearcher(monitor, rand.New(rand.NewSource(c.Seed)))
	default:
		return chef.NewDFSSearcher()
	}
}

// parseBool accepts the same truthy spellings as the verbose flag.
func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}

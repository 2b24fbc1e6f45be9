package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/chef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.StopOnError)
	assert.Equal(t, 60*time.Second, cfg.TreeDumpInterval)
	assert.Zero(t, cfg.PathTimeout)
	assert.Zero(t, cfg.SessionTimeout)
	assert.False(t, cfg.ExtraDetails)
	assert.Equal(t, SearcherDFS, cfg.Searcher)
	assert.Equal(t, "chef-out", cfg.OutputDir)
	assert.False(t, cfg.Verbose)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(c *Config)
		errContains string
	}{
		{"valid", func(c *Config) {}, ""},
		{"invalid searcher", func(c *Config) { c.Searcher = "astar" }, "invalid searcher"},
		{"negative dump interval", func(c *Config) { c.TreeDumpInterval = -time.Second }, "tree_dump_interval"},
		{"negative path timeout", func(c *Config) { c.PathTimeout = -time.Second }, "path_timeout"},
		{"negative session timeout", func(c *Config) { c.SessionTimeout = -time.Second }, "session_timeout"},
		{"missing output dir", func(c *Config) { c.OutputDir = "" }, "output_dir is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Run("override defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte(`
stop_on_error: true
tree_dump_interval: 5m
path_timeout: 30s
searcher: weighted
seed: 42
`), 0644))

		cfg, err := LoadFromFile(configPath)
		require.NoError(t, err)
		assert.True(t, cfg.StopOnError)
		assert.Equal(t, 5*time.Minute, cfg.TreeDumpInterval)
		assert.Equal(t, 30*time.Second, cfg.PathTimeout)
		assert.Equal(t, SearcherWeighted, cfg.Searcher)
		assert.Equal(t, int64(42), cfg.Seed)
		assert.Equal(t, "chef-out", cfg.OutputDir, "unset fields keep their defaults")
	})

	t.Run("env overrides file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("searcher: bfs\n"), 0644))
		t.Setenv("CHEF_SEARCHER", "random")
		t.Setenv("CHEF_SESSION_TIMEOUT", "1h")
		t.Setenv("CHEF_EXTRA_DETAILS", "1")

		cfg, err := LoadFromFile(configPath)
		require.NoError(t, err)
		assert.Equal(t, SearcherRandom, cfg.Searcher)
		assert.Equal(t, time.Hour, cfg.SessionTimeout)
		assert.True(t, cfg.ExtraDetails)
	})

	t.Run("invalid env duration", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("{}\n"), 0644))
		t.Setenv("CHEF_PATH_TIMEOUT", "soon")

		_, err := LoadFromFile(configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CHEF_PATH_TIMEOUT")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("searcher: [\n"), 0644))

		_, err := LoadFromFile(configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})
}

func TestLoad(t *testing.T) {
	home, project := t.TempDir(), t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".chef"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".chef", "config.yaml"), []byte("searcher: bfs\nseed: 7\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(project, ".chef"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(project, ".chef", "config.yaml"), []byte("searcher: random\n"), 0644))

	testChdir(t, project)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, SearcherRandom, cfg.Searcher, "project config overrides global")
	assert.Equal(t, int64(7), cfg.Seed, "global config applies when project is silent")
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.StopOnError = true
	cfg.PathTimeout = 10 * time.Second
	require.NoError(t, cfg.Save(path))

	other, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, other)
}

func TestSessionConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopOnError = true
	cfg.ExtraDetails = true
	cfg.PathTimeout = time.Minute

	assert.Equal(t, chef.SessionConfig{
		StopOnError:      true,
		TreeDumpInterval: chef.DefaultTreeDumpInterval,
		PathTimeout:      time.Minute,
		ExtraDetails:     true,
	}, cfg.SessionConfig())
}

func TestNewSearcher(t *testing.T) {
	monitor := chef.NewInterpreterMonitor(nil)

	tests := []struct {
		searcher SearcherType
		expected interface{}
	}{
		{SearcherDFS, &chef.DFSSearcher{}},
		{SearcherBFS, &chef.BFSSearcher{}},
		{SearcherRandom, &chef.RandomSearcher{}},
		{SearcherWeighted, &chef.WeightedSearcher{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.searcher), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Searcher = tt.searcher
			assert.IsType(t, tt.expected, cfg.NewSearcher(monitor))
		})
	}
}

// testChdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir from Go 1.24).
func testChdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

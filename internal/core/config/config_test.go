package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/bigspace/internal/core/grid"
	"github.com/zeusync/bigspace/internal/core/observability/log"
)

const sampleYAML = `
cell_size: 2000
switching_threshold: 10
speed_bounds: [1e-6, 1e20]
smoothness: [0.5, 0.25]
speed: 2
slowing: false
partition_count: 4
workers: 8
log_level: debug
telemetry:
  websocket_addr: 127.0.0.1:8090
  every_frames: 10
`

func TestLoad(t *testing.T) {
	t.Run("full document", func(t *testing.T) {
		c, err := Load(strings.NewReader(sampleYAML))
		require.NoError(t, err)
		assert.Equal(t, 2000.0, c.CellSize)
		assert.Equal(t, 10.0, c.SwitchingThreshold)
		assert.Equal(t, [2]float64{1e-6, 1e20}, c.SpeedBounds)
		assert.Equal(t, [2]float64{0.5, 0.25}, c.Smoothness)
		assert.False(t, c.Slowing)
		assert.Equal(t, 4, c.PartitionCount)
		assert.Equal(t, 8, c.Workers)
		assert.Equal(t, log.LevelDebug, c.Level())
		assert.Equal(t, "127.0.0.1:8090", c.Telemetry.WebSocketAddr)
		assert.Empty(t, c.Telemetry.QUICAddr)
		assert.Equal(t, 10, c.Telemetry.EveryFrames)

		s := c.CameraSettings()
		assert.Equal(t, 1e-6, s.MinSpeed)
		assert.Equal(t, 0.25, s.RotationSmoothness)
		assert.Equal(t, 2.0, s.Speed)

		g, err := c.Grid()
		require.NoError(t, err)
		assert.Equal(t, 1010.0, g.MaxOffset())
	})

	t.Run("empty document yields defaults", func(t *testing.T) {
		c, err := Load(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, Default(), c)
	})

	t.Run("partial document keeps defaults", func(t *testing.T) {
		c, err := Load(strings.NewReader("partition_count: 3\n"))
		require.NoError(t, err)
		assert.Equal(t, 3, c.PartitionCount)
		assert.Equal(t, Default().CellSize, c.CellSize)
		assert.True(t, c.Slowing)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		_, err := Load(strings.NewReader("cell_sise: 3\n"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("json", func(t *testing.T) {
		c, err := LoadJSON(strings.NewReader(`{"cell_size": 5, "partition_count": 2}`))
		require.NoError(t, err)
		assert.Equal(t, 5.0, c.CellSize)
		assert.Equal(t, 2, c.PartitionCount)
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "world.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(sampleYAML), 0o600))
	c, err := LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, c.CellSize)

	jsonPath := filepath.Join(dir, "world.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"workers": 2}`), 0o600))
	c, err = LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Workers)

	tomlPath := filepath.Join(dir, "world.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("cell_size = 500.0\nspeed_bounds = [0.001, 1e9]\n\n[telemetry]\nevery_frames = 5\n"), 0o600))
	c, err = LoadFile(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, 500.0, c.CellSize)
	assert.Equal(t, [2]float64{0.001, 1e9}, c.SpeedBounds)
	assert.Equal(t, 5, c.Telemetry.EveryFrames)

	badTOML := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(badTOML, []byte("warp_drive = true\n"), 0o600))
	_, err = LoadFile(badTOML)
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	cases := map[string]func(*Config){
		"zero cell size":       func(c *Config) { c.CellSize = 0 },
		"threshold too large":  func(c *Config) { c.SwitchingThreshold = c.CellSize },
		"inverted speed":       func(c *Config) { c.SpeedBounds = [2]float64{10, 1} },
		"smoothness of one":    func(c *Config) { c.Smoothness[0] = 1 },
		"no partitions":        func(c *Config) { c.PartitionCount = 0 },
		"too many partitions":  func(c *Config) { c.PartitionCount = 65 },
		"no workers":           func(c *Config) { c.Workers = 0 },
		"unknown log level":    func(c *Config) { c.LogLevel = "chatty" },
		"unknown log format":   func(c *Config) { c.LogFormat = "xml" },
		"zero telemetry every": func(c *Config) { c.Telemetry.EveryFrames = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("cell errors stay inspectable", func(t *testing.T) {
		c := Default()
		c.CellSize = -1
		assert.ErrorIs(t, c.Validate(), grid.ErrInvalidCellSize)
	})
}

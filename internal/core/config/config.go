// Package config loads and validates the settings of a floating-origin world.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/bigspace/internal/core/camera"
	"github.com/zeusync/bigspace/internal/core/grid"
	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/observability/log"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config can be described in YAML, TOML or JSON. Zero-valued fields left out of a
// document keep their Default value.
type Config struct {
	CellSize           float64    `json:"cell_size" yaml:"cell_size" toml:"cell_size"`
	SwitchingThreshold float64    `json:"switching_threshold" yaml:"switching_threshold" toml:"switching_threshold"`
	SpeedBounds        [2]float64 `json:"speed_bounds" yaml:"speed_bounds" toml:"speed_bounds"`
	Smoothness         [2]float64 `json:"smoothness" yaml:"smoothness" toml:"smoothness"`
	Speed              float64    `json:"speed" yaml:"speed" toml:"speed"`
	Slowing            bool       `json:"slowing" yaml:"slowing" toml:"slowing"`
	PartitionCount     int        `json:"partition_count" yaml:"partition_count" toml:"partition_count"`
	Workers            int        `json:"workers" yaml:"workers" toml:"workers"`
	LogLevel           string     `json:"log_level" yaml:"log_level" toml:"log_level"`
	// LogFormat is "json" or "console".
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry" toml:"telemetry"`
}

type TelemetryConfig struct {
	WebSocketAddr string `json:"websocket_addr,omitempty" yaml:"websocket_addr,omitempty" toml:"websocket_addr,omitempty"`
	QUICAddr      string `json:"quic_addr,omitempty" yaml:"quic_addr,omitempty" toml:"quic_addr,omitempty"`
	// EveryFrames publishes one snapshot per this many frames.
	EveryFrames int `json:"every_frames" yaml:"every_frames" toml:"every_frames"`
}

func Default() Config {
	cam := camera.DefaultSettings()
	return Config{
		CellSize:           10_000,
		SwitchingThreshold: 0,
		SpeedBounds:        [2]float64{cam.MinSpeed, cam.MaxSpeed},
		Smoothness:         [2]float64{cam.TranslationSmoothness, cam.RotationSmoothness},
		Speed:              cam.Speed,
		Slowing:            cam.Slowing,
		PartitionCount:     1,
		Workers:            4,
		LogLevel:           "info",
		LogFormat:          "json",
		Telemetry:          TelemetryConfig{EveryFrames: 30},
	}
}

// Load reads a YAML document over Default and validates the result. An
// empty document yields the defaults.
func Load(r io.Reader) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return c, c.Validate()
}

// LoadJSON is Load for JSON documents.
func LoadJSON(r io.Reader) (Config, error) {
	c := Default()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return c, c.Validate()
}

// LoadTOML is Load for TOML documents.
func LoadTOML(r io.Reader) (Config, error) {
	c := Default()
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return c, c.Validate()
}

// LoadFile picks the decoder from the file extension; anything but .json
// and .toml is treated as YAML.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(f)
	case ".toml":
		return LoadTOML(f)
	default:
		return Load(f)
	}
}

func (c Config) Validate() error {
	var errs []error
	if _, err := grid.New(c.CellSize, c.SwitchingThreshold); err != nil {
		errs = append(errs, err)
	}
	if err := c.CameraSettings().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.PartitionCount < 1 || c.PartitionCount > models.MaxPartitions {
		errs = append(errs, fmt.Errorf("partition_count %d outside [1, %d]", c.PartitionCount, models.MaxPartitions))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers %d must be positive", c.Workers))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("log_format %q must be json or console", c.LogFormat))
	}
	if c.Telemetry.EveryFrames < 1 {
		errs = append(errs, fmt.Errorf("telemetry.every_frames %d must be positive", c.Telemetry.EveryFrames))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func (c Config) Grid() (grid.Grid, error) {
	return grid.New(c.CellSize, c.SwitchingThreshold)
}

func (c Config) CameraSettings() camera.Settings {
	return camera.Settings{
		MinSpeed:              c.SpeedBounds[0],
		MaxSpeed:              c.SpeedBounds[1],
		TranslationSmoothness: c.Smoothness[0],
		RotationSmoothness:    c.Smoothness[1],
		Speed:                 c.Speed,
		Slowing:               c.Slowing,
	}
}

// Level returns the parsed log level, falling back to info.
func (c Config) Level() log.Level {
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.LevelInfo
	}
	return l
}

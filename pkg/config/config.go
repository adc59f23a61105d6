// Package config loads and saves the lerobot-convert TOML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/gwillem/zarr2lerobot/pkg/convert"
	"github.com/gwillem/zarr2lerobot/pkg/dataset"
	"github.com/gwillem/zarr2lerobot/pkg/features"
	"github.com/gwillem/zarr2lerobot/pkg/robot"
)

const DefaultConfigFile = "lerobot-convert.toml"

// Config holds the conversion configuration
type Config struct {
	RawDir             string   `toml:"raw_dir"`
	Store              string   `toml:"store"`
	RepoID             string   `toml:"repo_id"`
	OutputDir          string   `toml:"output_dir"`
	Modes              []string `toml:"modes"`
	PushToHub          bool     `toml:"push_to_hub"`
	FPS                int      `toml:"fps"`
	RobotType          string   `toml:"robot_type"`
	Task               string   `toml:"task"`
	ChunkSize          int      `toml:"chunks_size"`
	ImageWriterThreads int      `toml:"image_writer_threads"`

	Source SourceConfig `toml:"source"`
	Video  VideoConfig  `toml:"video"`
	Log    LogConfig    `toml:"log"`
}

// SourceConfig names the arrays read from the replay buffer.
type SourceConfig struct {
	StateKey  string `toml:"state_key"`
	ActionKey string `toml:"action_key"`
	ImageKey  string `toml:"image_key"`
}

// VideoConfig holds ffmpeg settings for video mode.
type VideoConfig struct {
	Codec  string `toml:"codec"`
	FFmpeg string `toml:"ffmpeg"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Default returns the PushT scara conversion settings.
func Default() Config {
	return Config{
		RawDir:             "../data/datasets",
		Store:              "scara-push-v0-render-v0.zarr",
		RepoID:             "scara_pusht",
		OutputDir:          "../data/datasets",
		Modes:              []string{string(features.ModeImage)},
		FPS:                dataset.DefaultFPS,
		RobotType:          robot.PlanarEEF,
		Task:               convert.DefaultTask,
		ChunkSize:          dataset.DefaultChunkSize,
		ImageWriterThreads: dataset.DefaultImageWriterThreads,
		Source: SourceConfig{
			StateKey:  convert.DefaultStateKey,
			ActionKey: convert.DefaultActionKey,
			ImageKey:  convert.DefaultImageKey,
		},
		Video: VideoConfig{
			Codec:  dataset.DefaultVideoCodec,
			FFmpeg: dataset.DefaultFFmpegBinary,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. Keys missing
// from the file keep their defaults. The result is not validated so that
// command line overrides can be applied first; call Validate afterwards.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}

// Validate checks that the configuration can drive a conversion.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.RawDir) == "" {
		errs = append(errs, errors.New("raw_dir is required"))
	}
	if strings.TrimSpace(c.Store) == "" {
		errs = append(errs, errors.New("store is required"))
	}
	if strings.TrimSpace(c.RepoID) == "" {
		errs = append(errs, errors.New("repo_id is required"))
	}
	if len(c.Modes) == 0 {
		errs = append(errs, errors.New("at least one mode is required"))
	}
	for _, m := range c.Modes {
		if _, err := features.ParseMode(m); err != nil {
			errs = append(errs, fmt.Errorf("modes: %w", err))
		}
	}
	if c.FPS <= 0 {
		errs = append(errs, fmt.Errorf("fps must be positive, got %d", c.FPS))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunks_size must be positive, got %d", c.ChunkSize))
	}
	if c.ImageWriterThreads < 0 {
		errs = append(errs, fmt.Errorf("image_writer_threads must not be negative, got %d", c.ImageWriterThreads))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unsupported value %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// StorePath returns the replay buffer location.
func (c *Config) StorePath() string {
	return filepath.Join(c.RawDir, c.Store)
}

// RepoIDFor returns the repo id used for mode. Image and keypoints datasets
// get a mode suffix; video keeps the base id.
func (c *Config) RepoIDFor(mode features.Mode) string {
	switch mode {
	case features.ModeImage, features.ModeKeypoints:
		return c.RepoID + "_" + string(mode)
	default:
		return c.RepoID
	}
}

// RootFor returns the dataset directory for mode.
func (c *Config) RootFor(mode features.Mode) string {
	return filepath.Join(c.OutputDir, c.RepoIDFor(mode))
}

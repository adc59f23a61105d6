package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gwillem/zarr2lerobot/pkg/features"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.FPS != 10 || cfg.ImageWriterThreads != 4 || cfg.RobotType != "planar eef" {
		t.Errorf("defaults = fps %d, threads %d, robot %q", cfg.FPS, cfg.ImageWriterThreads, cfg.RobotType)
	}
	if got := cfg.StorePath(); got != filepath.Join("../data/datasets", "scara-push-v0-render-v0.zarr") {
		t.Errorf("StorePath() = %q", got)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", DefaultConfigFile)
	cfg := Default()
	cfg.RepoID = "me/pusht"
	cfg.Modes = []string{"video", "image"}
	cfg.Video.Codec = "libx264"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	got, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}
	if got.RepoID != "me/pusht" || got.Video.Codec != "libx264" || len(got.Modes) != 2 || got.Modes[0] != "video" {
		t.Errorf("loaded = %+v", got)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	data := "repo_id = \"me/pusht\"\n\n[log]\nlevel = \"debug\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}
	if cfg.RepoID != "me/pusht" || cfg.Log.Level != "debug" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Log.Format != "text" || cfg.Source.StateKey != "robot_eef_pos" || cfg.FPS != 10 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadConfigFrom(filepath.Join(dir, "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want ErrNotExist", err)
	}

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "colour = \"blue\"\n", "strict mode"},
		{"bad syntax", "repo_id = \n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadConfigFrom(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfigFrom() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadThenValidate(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad mode", "modes = [\"depth\"]\n", "unsupported mode"},
		{"zero fps", "fps = 0\n", "fps must be positive"},
		{"bad log format", "[log]\nformat = \"xml\"\n", "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			cfg, err := LoadConfigFrom(path)
			if err != nil {
				t.Fatalf("LoadConfigFrom() error = %v, want nil before validation", err)
			}
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestRepoIDFor(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "out"
	tests := []struct {
		mode features.Mode
		want string
	}{
		{features.ModeImage, "scara_pusht_image"},
		{features.ModeKeypoints, "scara_pusht_keypoints"},
		{features.ModeVideo, "scara_pusht"},
	}
	for _, tt := range tests {
		// suffixes must not accumulate across modes
		if got := cfg.RepoIDFor(tt.mode); got != tt.want {
			t.Errorf("RepoIDFor(%s) = %q, want %q", tt.mode, got, tt.want)
		}
		if got, want := cfg.RootFor(tt.mode), filepath.Join("out", tt.want); got != want {
			t.Errorf("RootFor(%s) = %q, want %q", tt.mode, got, want)
		}
	}
}

func TestConfigExists(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if ConfigExists() {
		t.Fatal("ConfigExists() = true in empty dir")
	}
	cfg := Default()
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}
	if !ConfigExists() {
		t.Error("ConfigExists() = false after Save")
	}
	if _, err := LoadConfig(); err != nil {
		t.Errorf("LoadConfig() error = %v", err)
	}
}

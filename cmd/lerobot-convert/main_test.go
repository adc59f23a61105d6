package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gwillem/zarr2lerobot/pkg/config"
	"github.com/gwillem/zarr2lerobot/pkg/convert"
	"github.com/gwillem/zarr2lerobot/pkg/features"
	"github.com/gwillem/zarr2lerobot/pkg/metrics"
	"github.com/gwillem/zarr2lerobot/pkg/replay"
	"github.com/gwillem/zarr2lerobot/pkg/zarr"
)

func TestDims(t *testing.T) {
	tests := []struct {
		in   []int
		want string
	}{
		{[]int{25650, 96, 96, 3}, "25650×96×96×3"},
		{[]int{7}, "7"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := dims(tt.in); got != tt.want {
			t.Errorf("dims(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompressorName(t *testing.T) {
	tests := []struct {
		in   *zarr.Compressor
		want string
	}{
		{nil, "none"},
		{&zarr.Compressor{ID: "zstd", Level: 3}, "zstd:3"},
		{&zarr.Compressor{ID: "gzip"}, "gzip"},
		{&zarr.Compressor{ID: "blosc", CName: "lz4", CLevel: 5, Shuffle: 1}, "blosc/lz4:5 shuffle"},
		{&zarr.Compressor{ID: "blosc", CName: "zstd", CLevel: 3}, "blosc/zstd:3"},
	}
	for _, tt := range tests {
		if got := compressorName(tt.in); got != tt.want {
			t.Errorf("compressorName(%+v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConvertFlagsOverrideConfig(t *testing.T) {
	cfg := config.Default()
	cmd := ConvertCommand{
		RawDir:    "raw",
		RepoID:    "me/pusht",
		Modes:     []string{"video"},
		PushToHub: true,
		LogLevel:  "debug",
	}
	cmd.apply(&cfg)

	if cfg.RawDir != "raw" || cfg.RepoID != "me/pusht" || cfg.Log.Level != "debug" || !cfg.PushToHub {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if len(cfg.Modes) != 1 || cfg.Modes[0] != "video" {
		t.Errorf("Modes = %v, want [video]", cfg.Modes)
	}
	if cfg.Store != config.Default().Store || cfg.OutputDir != config.Default().OutputDir {
		t.Errorf("unset flags changed config: %+v", cfg)
	}
}

func TestAttrLines(t *testing.T) {
	got := attrLines(map[string]any{"fps": 10, "env": "scara-push-v0"})
	want := []string{"env: scara-push-v0", "fps: 10"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("attrLines() = %q, want %q", got, want)
	}
	if got := attrLines(nil); len(got) != 0 {
		t.Errorf("attrLines(nil) = %q, want none", got)
	}
}

// withConfigFile points the global --config option at path for one test.
func withConfigFile(t *testing.T, path string) {
	t.Helper()
	old := opts.ConfigFile
	opts.ConfigFile = path
	t.Cleanup(func() { opts.ConfigFile = old })
}

func TestModeFlagOverridesInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lerobot-convert.toml")
	if err := os.WriteFile(path, []byte("modes = [\"depth\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	withConfigFile(t, path)

	if _, err := (&ConvertCommand{}).resolveConfig(); err == nil || !strings.Contains(err.Error(), "unsupported mode") {
		t.Errorf("resolveConfig() without --mode error = %v, want unsupported mode", err)
	}

	cfg, err := (&ConvertCommand{Modes: []string{"video"}}).resolveConfig()
	if err != nil {
		t.Fatalf("resolveConfig() with --mode video error = %v", err)
	}
	if len(cfg.Modes) != 1 || cfg.Modes[0] != "video" {
		t.Errorf("Modes = %v, want [video]", cfg.Modes)
	}
}

func TestPrintProgress(t *testing.T) {
	logs := make(chan string, 1)
	progress := make(chan convert.Progress, 4)
	progress <- convert.Progress{Episodes: 2, Frame: 0, Frames: 100}
	progress <- convert.Progress{Episodes: 2, Frame: 5, Frames: 100}
	progress <- convert.Progress{Episode: 1, Episodes: 2, Frame: 40, Frames: 100}
	progress <- convert.Progress{Episode: 1, Episodes: 2, Frame: 100, Frames: 100, Done: true}

	var out bytes.Buffer
	printProgress(context.Background(), &out, logs, progress)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("printed %d lines, want 3:\n%s", len(lines), out.String())
	}
	for i, want := range []string{"  0%", " 40%", "100%"} {
		if !strings.HasPrefix(lines[i], want) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], want)
		}
	}
}

func TestPrintProgressStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		printProgress(ctx, &bytes.Buffer{}, make(chan string), make(chan convert.Progress))
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("printProgress did not return after cancel")
	}
}

var errNoStore = errors.New("no store")

type missingSource struct{}

func (missingSource) Float32s(string) (replay.Matrix, error) { return replay.Matrix{}, errNoStore }
func (missingSource) Frames(string) (convert.Frames, error)  { return nil, errNoStore }
func (missingSource) EpisodeEnds() ([]int64, error)          { return nil, errNoStore }

func TestRunPlainFailure(t *testing.T) {
	factory := func(features.Features) (convert.Writer, error) {
		return nil, errors.New("writer not expected")
	}
	conv, err := convert.New(convert.Config{Mode: features.ModeImage}, missingSource{}, factory)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if _, err := runPlain(context.Background(), &out, conv); !errors.Is(err, errNoStore) {
		t.Fatalf("runPlain() error = %v, want errNoStore", err)
	}
	// the printer has stopped and the failure line was flushed
	if !strings.Contains(out.String(), "Conversion failed") {
		t.Errorf("output missing failure line:\n%s", out.String())
	}
}

func TestSetupFailuresCounted(t *testing.T) {
	tests := []struct {
		name string
		mode features.Mode
	}{
		{"keypoints", features.ModeKeypoints},
		{"missing store", features.ModeImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.RawDir = t.TempDir()
			cfg.OutputDir = t.TempDir()
			m := metrics.New()
			logger := slog.New(slog.DiscardHandler)

			c := &ConvertCommand{}
			if err := c.convertMode(context.Background(), &cfg, tt.mode, logger, m, false); err == nil {
				t.Fatal("convertMode() error = nil")
			}

			path := filepath.Join(t.TempDir(), "metrics.prom")
			if err := m.WriteTextfile(path); err != nil {
				t.Fatal(err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			want := `lerobot_convert_errors_total{mode="` + string(tt.mode) + `"} 1`
			if !strings.Contains(string(data), want) {
				t.Errorf("metrics missing %q:\n%s", want, data)
			}
		})
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/gwillem/zarr2lerobot/pkg/config"
	"github.com/gwillem/zarr2lerobot/pkg/convert"
	"github.com/gwillem/zarr2lerobot/pkg/dataset"
	"github.com/gwillem/zarr2lerobot/pkg/features"
	"github.com/gwillem/zarr2lerobot/pkg/logging"
	"github.com/gwillem/zarr2lerobot/pkg/metrics"
	"github.com/gwillem/zarr2lerobot/pkg/replay"
	"github.com/gwillem/zarr2lerobot/pkg/zarr"
)

type ConvertCommand struct {
	RawDir      string   `long:"raw-dir" description:"Directory holding the replay buffer"`
	Store       string   `long:"store" description:"Replay buffer directory name inside raw-dir"`
	RepoID      string   `long:"repo-id" description:"Dataset repo id (image and keypoints get a mode suffix)"`
	OutputDir   string   `long:"output-dir" description:"Directory the datasets are written to"`
	Modes       []string `long:"mode" description:"Observation mode: image, video or keypoints (repeatable)"`
	PushToHub   bool     `long:"push-to-hub" description:"Publish the dataset after conversion"`
	Force       bool     `long:"force" description:"Replace existing datasets without asking"`
	NoTUI       bool     `long:"no-tui" description:"Plain log output even on a terminal"`
	MetricsFile string   `long:"metrics-file" description:"Write Prometheus metrics to this textfile"`
	LogLevel    string   `long:"log-level" description:"Log level: debug, info, warn or error"`
}

// loadConfig reads the configuration file. A missing default file means
// built-in defaults; a missing explicit file is an error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigFrom(opts.ConfigFile)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && opts.ConfigFile == config.DefaultConfigFile {
		d := config.Default()
		return &d, nil
	}
	return nil, err
}

func (c *ConvertCommand) apply(cfg *config.Config) {
	if c.RawDir != "" {
		cfg.RawDir = c.RawDir
	}
	if c.Store != "" {
		cfg.Store = c.Store
	}
	if c.RepoID != "" {
		cfg.RepoID = c.RepoID
	}
	if c.OutputDir != "" {
		cfg.OutputDir = c.OutputDir
	}
	if len(c.Modes) > 0 {
		cfg.Modes = c.Modes
	}
	if c.PushToHub {
		cfg.PushToHub = true
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
}

func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// resolveConfig loads the config file, applies the flags and validates the
// result once.
func (c *ConvertCommand) resolveConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *ConvertCommand) Execute(args []string) error {
	cfg, err := c.resolveConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	useTUI := !c.NoTUI && isTerminal()
	logOutput := io.Writer(os.Stderr)
	if useTUI {
		// the TUI owns the terminal; structured logs go to the log file only
		logOutput = io.Discard
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: logOutput,
		File:   cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	failed := false
	for _, name := range cfg.Modes {
		mode, _ := features.ParseMode(name)
		if err := c.convertMode(ctx, cfg, mode, logger, m, useTUI); err != nil {
			failed = true
			fmt.Fprintf(os.Stderr, "Conversion (%s) failed: %v\n", mode, err)
			explain(err)
			if errors.Is(err, context.Canceled) {
				break
			}
		}
	}

	if c.MetricsFile != "" {
		if err := m.WriteTextfile(c.MetricsFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing metrics: %v\n", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
	return nil
}

// explain prints hints for errors the user can act on.
func explain(err error) {
	switch {
	case errors.Is(err, zarr.ErrUnsupportedCodec):
		fmt.Fprintln(os.Stderr, "The store uses a compressor this build cannot decode. Re-save it with zstd, zlib or blosc-lz4.")
	case errors.Is(err, zarr.ErrNotFound):
		fmt.Fprintln(os.Stderr, "Check --raw-dir and --store, or run 'lerobot-convert inspect <store>'.")
	case errors.Is(err, convert.ErrKeypointsUnsupported):
		fmt.Fprintln(os.Stderr, "Keypoint observations are not stored in this replay buffer; use image or video.")
	case errors.Is(err, dataset.ErrExists):
		fmt.Fprintln(os.Stderr, "Use --force to replace the existing dataset.")
	}
}

func (c *ConvertCommand) convertMode(ctx context.Context, cfg *config.Config, mode features.Mode, logger *slog.Logger, m *metrics.Metrics, useTUI bool) error {
	runID := uuid.NewString()
	repoID := cfg.RepoIDFor(mode)
	root := cfg.RootFor(mode)
	log := logger.With("run_id", runID, "mode", string(mode), "repo_id", repoID)
	rec := m.For(string(mode))
	// Run counts its own failures; setup failures are counted here.
	fail := func(err error) error {
		rec.ConversionFailed()
		log.Error("conversion setup failed", "error", err)
		return err
	}

	if err := convert.CheckMode(mode); err != nil {
		return fail(err)
	}
	ok, err := c.prepareRoot(root, useTUI)
	if err != nil {
		return fail(err)
	}
	if !ok {
		fmt.Printf("Skipping %s\n", root)
		return nil
	}

	buf, err := replay.Open(cfg.StorePath())
	if err != nil {
		return fail(err)
	}
	log.Info("opened replay buffer", "path", buf.Path())

	factory := func(fs features.Features) (convert.Writer, error) {
		return dataset.Create(dataset.Options{
			Root:               root,
			RepoID:             repoID,
			FPS:                cfg.FPS,
			RobotType:          cfg.RobotType,
			Features:           fs,
			ImageWriterThreads: cfg.ImageWriterThreads,
			VideoCodec:         cfg.Video.Codec,
			FFmpegBinary:       cfg.Video.FFmpeg,
			ChunkSize:          cfg.ChunkSize,
			Logger:             log,
		})
	}
	conv, err := convert.New(convert.Config{
		Mode:      mode,
		Task:      cfg.Task,
		StateKey:  cfg.Source.StateKey,
		ActionKey: cfg.Source.ActionKey,
		ImageKey:  cfg.Source.ImageKey,
	}, convert.BufferSource(buf), factory, convert.WithLogger(log), convert.WithRecorder(rec))
	if err != nil {
		return fail(err)
	}

	start := time.Now()
	var summary convert.Summary
	if useTUI {
		summary, err = runTUI(ctx, conv, mode, repoID)
	} else {
		summary, err = runPlain(ctx, os.Stderr, conv)
	}
	m.ObserveDuration(string(mode), time.Since(start))
	if err != nil {
		return err
	}
	m.MarkSuccess(time.Now())

	fmt.Printf("%s %s: %s episodes, %s frames in %s\n",
		successStyle.Render("✓"), root,
		humanize.Comma(int64(summary.Episodes)), humanize.Comma(int64(summary.Frames)),
		summary.Duration.Round(time.Millisecond))

	if cfg.PushToHub {
		log.Warn("push to hub is not implemented; dataset kept locally", "root", root)
	}
	return nil
}

// prepareRoot makes sure root can be written. It reports false when the
// user declines to replace an existing dataset.
func (c *ConvertCommand) prepareRoot(root string, interactive bool) (bool, error) {
	_, err := os.Stat(filepath.Join(root, dataset.InfoPath))
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if !c.Force {
		if !interactive {
			return false, fmt.Errorf("%w: %s", dataset.ErrExists, root)
		}
		var replace bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("%s already holds a dataset. Replace it?", root)).
					Affirmative("Replace").
					Negative("Skip").
					Value(&replace),
			),
		)
		if err := form.Run(); err != nil {
			return false, err
		}
		if !replace {
			return false, nil
		}
	}
	if err := os.RemoveAll(root); err != nil {
		return false, fmt.Errorf("remove %s: %w", root, err)
	}
	return true, nil
}

// runPlain runs the conversion, printing log lines and a progress line every
// ten percent to w.
func runPlain(ctx context.Context, w io.Writer, conv *convert.Converter) (convert.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		printProgress(ctx, w, conv.Logs(), conv.Progress())
	}()

	summary, err := conv.Run(ctx)
	if err != nil {
		// no Done update will follow
		cancel()
	}
	<-done

	// flush log lines still buffered
	for {
		select {
		case line := <-conv.Logs():
			fmt.Fprintln(w, line)
		default:
			return summary, err
		}
	}
}

// printProgress copies log lines and progress to w until a Done update
// arrives or ctx ends.
func printProgress(ctx context.Context, w io.Writer, logs <-chan string, progress <-chan convert.Progress) {
	lastPct := -10
	for {
		select {
		case line := <-logs:
			fmt.Fprintln(w, line)
		case p := <-progress:
			if p.Frames > 0 {
				pct := p.Frame * 100 / p.Frames
				if pct/10 != lastPct/10 {
					lastPct = pct
					fmt.Fprintf(w, "%3d%%  episode %d/%d  frame %s/%s\n", pct, p.Episode+1, p.Episodes,
						humanize.Comma(int64(p.Frame)), humanize.Comma(int64(p.Frames)))
				}
			}
			if p.Done {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func runTUI(ctx context.Context, conv *convert.Converter, mode features.Mode, repoID string) (convert.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		summary convert.Summary
		err     error
	}
	resCh := make(chan result, 1)
	p := tea.NewProgram(initialConvertModel(conv, mode, repoID, cancel), tea.WithAltScreen())
	go func() {
		summary, err := conv.Run(ctx)
		resCh <- result{summary, err}
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		res := <-resCh
		return res.summary, fmt.Errorf("run TUI: %w", err)
	}
	cancel()
	res := <-resCh
	return res.summary, res.err
}

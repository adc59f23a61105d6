// Package convert turns a replay buffer into LeRobot dataset episodes.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gwillem/zarr2lerobot/pkg/dataset"
	"github.com/gwillem/zarr2lerobot/pkg/episode"
	"github.com/gwillem/zarr2lerobot/pkg/features"
	"github.com/gwillem/zarr2lerobot/pkg/replay"
	"github.com/gwillem/zarr2lerobot/pkg/robot"
)

var (
	// ErrKeypointsUnsupported is returned for the keypoints mode: the store
	// layout for keypoint observations is not known.
	ErrKeypointsUnsupported = errors.New("keypoints mode is not supported")
	// ErrShapeMismatch is returned when source arrays disagree with the
	// episode boundaries or the feature schema.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// DefaultTask is the task description attached to every PushT frame.
const DefaultTask = "Push the T-shaped blue block onto the T-shaped green target surface with a scara."

// Default source keys of the PushT replay buffer.
const (
	DefaultStateKey  = "robot_eef_pos"
	DefaultActionKey = "action"
	DefaultImageKey  = "camera_1"
)

// Frames is a lazily read sequence of H×W×C images.
type Frames interface {
	Len() int
	Shape() (height, width, channels int)
	Frame(i int) ([]uint8, error)
}

// Source provides the raw per-frame arrays and episode boundaries.
type Source interface {
	Float32s(key string) (replay.Matrix, error)
	Frames(key string) (Frames, error)
	EpisodeEnds() ([]int64, error)
}

type bufferSource struct{ *replay.Buffer }

func (s bufferSource) Frames(key string) (Frames, error) {
	return s.Images(key)
}

// BufferSource adapts a replay buffer to Source.
func BufferSource(b *replay.Buffer) Source {
	return bufferSource{b}
}

// Writer receives frames. It is closed after Run if it implements io.Closer.
type Writer interface {
	AddFrame(dataset.Frame) error
	SaveEpisode(ctx context.Context) error
	Consolidate(ctx context.Context) error
}

// WriterFactory creates the destination writer once the schema is known.
type WriterFactory func(features.Features) (Writer, error)

// Recorder counts conversion events. *metrics.Recorder implements it.
type Recorder interface {
	FrameWritten()
	EpisodeSaved()
	ConversionFailed()
}

type nopRecorder struct{}

func (nopRecorder) FrameWritten()     {}
func (nopRecorder) EpisodeSaved()     {}
func (nopRecorder) ConversionFailed() {}

// Config selects what to convert.
type Config struct {
	Mode      features.Mode
	Task      string
	StateKey  string
	ActionKey string
	ImageKey  string
}

// Progress reports how far a conversion has come.
type Progress struct {
	Episode  int // episode being written
	Episodes int
	Frame    int // frames written so far
	Frames   int
	// State is the current end-effector position normalized to [-100, 100].
	State     map[robot.AxisName]float64
	Timestamp time.Time
	Done      bool
}

// Summary describes a finished conversion.
type Summary struct {
	Episodes int
	Frames   int
	Root     string
	Duration time.Duration
}

// Option configures a Converter.
type Option func(*Converter)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Converter) { c.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Converter) { c.recorder = r }
}

// Converter drives one conversion.
type Converter struct {
	cfg      Config
	src      Source
	factory  WriterFactory
	logger   *slog.Logger
	recorder Recorder

	mu         sync.Mutex
	running    bool
	progressCh chan Progress
	logCh      chan string
}

// CheckMode reports whether mode can be converted.
func CheckMode(mode features.Mode) error {
	if _, err := features.ParseMode(string(mode)); err != nil {
		return err
	}
	if mode == features.ModeKeypoints {
		return ErrKeypointsUnsupported
	}
	return nil
}

// New validates cfg and returns a converter. The source is not touched.
func New(cfg Config, src Source, factory WriterFactory, opts ...Option) (*Converter, error) {
	if err := CheckMode(cfg.Mode); err != nil {
		return nil, err
	}
	if src == nil || factory == nil {
		return nil, errors.New("new converter: source and writer factory are required")
	}
	if cfg.Task == "" {
		cfg.Task = DefaultTask
	}
	if cfg.StateKey == "" {
		cfg.StateKey = DefaultStateKey
	}
	if cfg.ActionKey == "" {
		cfg.ActionKey = DefaultActionKey
	}
	if cfg.ImageKey == "" {
		cfg.ImageKey = DefaultImageKey
	}

	c := &Converter{
		cfg:        cfg,
		src:        src,
		factory:    factory,
		logger:     slog.New(slog.DiscardHandler),
		recorder:   nopRecorder{},
		progressCh: make(chan Progress, 1),
		logCh:      make(chan string, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "convert", "mode", string(cfg.Mode))
	return c, nil
}

// Progress returns a channel holding the latest progress update.
func (c *Converter) Progress() <-chan Progress {
	return c.progressCh
}

// Logs returns a channel of human-readable log lines. Lines are dropped
// when nobody reads them.
func (c *Converter) Logs() <-chan string {
	return c.logCh
}

func (c *Converter) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
	}
}

func (c *Converter) sendProgress(p Progress) {
	p.Timestamp = time.Now()
	select {
	case c.progressCh <- p:
	default:
		// replace the stale update
		select {
		case <-c.progressCh:
		default:
		}
		c.progressCh <- p
	}
}

// source holds the arrays read for one run.
type source struct {
	state  replay.Matrix
	action replay.Matrix
	frames Frames
	ranges []episode.Range
	total  int
}

// Run converts every episode and consolidates the dataset.
func (c *Converter) Run(ctx context.Context) (Summary, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return Summary{}, errors.New("conversion already running")
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	start := time.Now()
	summary, err := c.run(ctx)
	summary.Duration = time.Since(start)
	if err != nil {
		c.recorder.ConversionFailed()
		c.log("Conversion failed: %v", err)
		c.logger.Error("conversion failed", "error", err, "episodes", summary.Episodes, "frames", summary.Frames)
		return summary, err
	}
	c.log("Converted %d episodes (%d frames) in %s", summary.Episodes, summary.Frames, summary.Duration.Round(time.Millisecond))
	c.logger.Info("conversion finished", "episodes", summary.Episodes, "frames", summary.Frames, "duration", summary.Duration)
	return summary, nil
}

func (c *Converter) run(ctx context.Context) (summary Summary, err error) {
	in, err := c.load()
	if err != nil {
		return summary, err
	}
	fs, err := c.schema(in)
	if err != nil {
		return summary, err
	}

	w, err := c.factory(fs)
	if err != nil {
		return summary, fmt.Errorf("create writer: %w", err)
	}
	if closer, ok := w.(io.Closer); ok {
		defer func() {
			if cerr := closer.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close writer: %w", cerr)
			}
		}()
	}
	if r, ok := w.(interface{ Root() string }); ok {
		summary.Root = r.Root()
	}

	ranges := robot.RangesOf(in.state.Data, in.state.Cols)
	c.log("Writing %d episodes, %d frames", len(in.ranges), in.total)
	for ep, r := range in.ranges {
		for i := int(r.From); i < int(r.To); i++ {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			frame, err := c.frame(in, i)
			if err != nil {
				return summary, err
			}
			if err := w.AddFrame(frame); err != nil {
				return summary, fmt.Errorf("add frame %d of episode %d: %w", i, ep, err)
			}
			c.recorder.FrameWritten()
			summary.Frames++
			c.sendProgress(Progress{
				Episode:  ep,
				Episodes: len(in.ranges),
				Frame:    summary.Frames,
				Frames:   in.total,
				State:    ranges.Normalize(in.state.Row(i)),
			})
		}
		if err := w.SaveEpisode(ctx); err != nil {
			return summary, fmt.Errorf("save episode %d: %w", ep, err)
		}
		c.recorder.EpisodeSaved()
		summary.Episodes++
		c.logger.Debug("episode saved", "episode_index", ep, "length", r.Len())
		if (ep+1)%50 == 0 {
			c.log("Saved episode %d/%d", ep+1, len(in.ranges))
		}
	}

	if err := w.Consolidate(ctx); err != nil {
		return summary, fmt.Errorf("consolidate: %w", err)
	}
	c.sendProgress(Progress{
		Episode:  len(in.ranges) - 1,
		Episodes: len(in.ranges),
		Frame:    summary.Frames,
		Frames:   in.total,
		Done:     true,
	})
	return summary, nil
}

// load reads the episode boundaries and source arrays once.
func (c *Converter) load() (*source, error) {
	ends, err := c.src.EpisodeEnds()
	if err != nil {
		return nil, fmt.Errorf("read episode ends: %w", err)
	}
	ranges, err := episode.Ranges(ends)
	if err != nil {
		return nil, err
	}
	in := &source{ranges: ranges, total: int(episode.Total(ranges))}

	if in.state, err = c.src.Float32s(c.cfg.StateKey); err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if in.action, err = c.src.Float32s(c.cfg.ActionKey); err != nil {
		return nil, fmt.Errorf("read action: %w", err)
	}
	if in.frames, err = c.src.Frames(c.cfg.ImageKey); err != nil {
		return nil, fmt.Errorf("open images: %w", err)
	}

	for _, a := range []struct {
		key  string
		rows int
	}{
		{c.cfg.StateKey, in.state.Rows},
		{c.cfg.ActionKey, in.action.Rows},
		{c.cfg.ImageKey, in.frames.Len()},
	} {
		if a.rows != in.total {
			return nil, fmt.Errorf("%w: %s has %d frames, episode ends cover %d", ErrShapeMismatch, a.key, a.rows, in.total)
		}
	}
	c.logger.Info("source loaded", "episodes", len(ranges), "frames", in.total)
	return in, nil
}

// schema builds the feature schema, taking the image geometry from the store.
func (c *Converter) schema(in *source) (features.Features, error) {
	fs, err := features.Build(c.cfg.Mode)
	if err != nil {
		return features.Features{}, err
	}
	for key, cols := range map[string]int{features.KeyState: in.state.Cols, features.KeyAction: in.action.Cols} {
		f, _ := fs.Get(key)
		if f.Size() != cols {
			return features.Features{}, fmt.Errorf("%w: %s has %d columns, want shape %v", ErrShapeMismatch, key, cols, f.Shape)
		}
	}
	img, _ := fs.Get(features.KeyImage)
	h, w, ch := in.frames.Shape()
	if h != img.Shape[0] || w != img.Shape[1] || ch != img.Shape[2] {
		c.logger.Warn("image geometry differs from default", "height", h, "width", w, "channels", ch)
	}
	img.Shape = []int{h, w, ch}
	return fs.Set(features.KeyImage, img), nil
}

// frame assembles global frame i. Vectors are sub-slices of the source
// arrays; the writer copies what it keeps.
func (c *Converter) frame(in *source, i int) (dataset.Frame, error) {
	pix, err := in.frames.Frame(i)
	if err != nil {
		return nil, err
	}
	h, w, ch := in.frames.Shape()
	return dataset.Frame{
		features.KeyAction: in.action.Row(i),
		features.KeyTask:   c.cfg.Task,
		features.KeyState:  in.state.Row(i),
		features.KeyImage:  dataset.Image{Height: h, Width: w, Channels: ch, Pix: pix},
	}, nil
}

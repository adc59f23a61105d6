// Package dataset writes LeRobot v2.0 datasets: per-episode parquet files,
// PNG frames or mp4 videos, and the meta/ JSON files describing them.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/gwillem/zarr2lerobot/pkg/features"
)

// Defaults for Options.
const (
	DefaultFPS                = 10
	DefaultImageWriterThreads = 4
	lockFile                  = ".lock"
)

// Options configures a new dataset.
type Options struct {
	Root      string // dataset directory, created if missing
	RepoID    string
	FPS       int
	RobotType string
	Features  features.Features
	// ImageWriterThreads is the number of PNG encoding goroutines; 0 encodes inline.
	ImageWriterThreads int
	VideoCodec         string
	FFmpegBinary       string
	ChunkSize          int
	Logger             *slog.Logger
}

// Dataset is a LeRobot dataset being written. It is not safe for concurrent use.
type Dataset struct {
	opts     Options
	features features.Features // user features, with video info filled in
	logger   *slog.Logger

	lock   *flock.Flock
	images *imageWriter
	buffer *episodeBuffer
	stats  map[string]*runningStats

	tasks      []string
	taskIndex  map[string]int
	savedTasks int // tasks already in tasks.jsonl
	episodes   int
	frames     int
	videos     int
	closed     bool
}

// Create initialises an empty dataset at opts.Root and locks it for writing.
func Create(opts Options) (*Dataset, error) {
	if opts.Root == "" {
		return nil, errors.New("create dataset: root is required")
	}
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("create dataset: fps must be positive, got %d", opts.FPS)
	}
	if opts.Features.Len() == 0 {
		return nil, errors.New("create dataset: no features")
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.VideoCodec == "" {
		opts.VideoCodec = DefaultVideoCodec
	}
	if opts.FFmpegBinary == "" {
		opts.FFmpegBinary = DefaultFFmpegBinary
	}
	if opts.ImageWriterThreads < 0 {
		opts.ImageWriterThreads = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	schema, err := prepareFeatures(opts)
	if err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}

	if _, err := os.Stat(filepath.Join(opts.Root, InfoPath)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, opts.Root)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("create dataset: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(opts.Root, "meta"), 0o755); err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}

	lock := flock.New(filepath.Join(opts.Root, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire dataset lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("dataset %s is locked by another writer", opts.Root)
	}

	d := &Dataset{
		opts:      opts,
		features:  schema,
		logger:    logger.With("component", "dataset", "root", opts.Root),
		lock:      lock,
		images:    newImageWriter(opts.ImageWriterThreads),
		buffer:    newEpisodeBuffer(0),
		stats:     make(map[string]*runningStats),
		taskIndex: make(map[string]int),
	}
	for _, key := range schema.Keys() {
		f, _ := schema.Get(key)
		if f.DType.IsVisual() {
			d.stats[key] = newRunningStats(f.Shape[2])
		} else {
			d.stats[key] = newRunningStats(f.Size())
		}
	}
	for _, key := range features.DefaultKeys() {
		d.stats[key] = newRunningStats(1)
	}

	if err := d.writeInfo(); err != nil {
		d.Close()
		return nil, err
	}
	d.logger.Debug("dataset created", "repo_id", opts.RepoID, "fps", opts.FPS, "image_writer_threads", opts.ImageWriterThreads)
	return d, nil
}

// prepareFeatures validates the user schema and fills in video details.
func prepareFeatures(opts Options) (features.Features, error) {
	out := opts.Features.Clone()
	for _, key := range out.Keys() {
		if features.IsDefault(key) || key == features.KeyTask {
			return features.Features{}, fmt.Errorf("feature %q is reserved", key)
		}
		f, _ := out.Get(key)
		switch f.DType {
		case features.Float32:
		case features.Image, features.Video:
			if len(f.Shape) != 3 {
				return features.Features{}, fmt.Errorf("feature %q: visual shape %v is not height×width×channels", key, f.Shape)
			}
			switch f.Shape[2] {
			case 1, 3, 4:
			default:
				return features.Features{}, fmt.Errorf("feature %q: %d channels not supported", key, f.Shape[2])
			}
			if f.DType == features.Video {
				f.Info = videoInfo(opts.FPS, opts.VideoCodec, featureShape{f.Shape[0], f.Shape[1], f.Shape[2]})
				out = out.Set(key, f)
			}
		case features.Pending:
			return features.Features{}, fmt.Errorf("feature %q has no dtype", key)
		default:
			return features.Features{}, fmt.Errorf("feature %q: dtype %q not supported", key, f.DType)
		}
	}
	return out, nil
}

// Root returns the dataset directory.
func (d *Dataset) Root() string { return d.opts.Root }

// Features returns the schema including video details.
func (d *Dataset) Features() features.Features { return d.features.Clone() }

// NumEpisodes returns the number of saved episodes.
func (d *Dataset) NumEpisodes() int { return d.episodes }

// NumFrames returns the number of frames in saved episodes.
func (d *Dataset) NumFrames() int { return d.frames }

// ImagesWritten returns the number of PNG frames encoded so far.
func (d *Dataset) ImagesWritten() int { return d.images.count() }

// AddFrame validates frame and appends it to the current episode. Images
// are queued on the writer pool; their errors surface in SaveEpisode.
func (d *Dataset) AddFrame(frame Frame) error {
	if d.closed {
		return ErrClosed
	}
	if err := validateFrame(d.features, frame); err != nil {
		return err
	}

	buf := d.buffer
	frameIndex := buf.size
	task := frame[features.KeyTask].(string)
	buf.addTask(task)

	for _, key := range d.features.Keys() {
		f, _ := d.features.Get(key)
		switch f.DType {
		case features.Float32:
			vec := frame[key].([]float32)
			buf.vectors[key] = append(buf.vectors[key], vec...)
			d.stats[key].addVector(vec)
		case features.Image, features.Video:
			img := frame[key].(Image)
			rel := imageFile(key, buf.index, frameIndex)
			if f.DType == features.Image {
				buf.imagePaths[key] = append(buf.imagePaths[key], rel)
			}
			d.stats[key].addImage(img.Pix, img.Channels)
			d.images.enqueue(filepath.Join(d.opts.Root, rel), img)
		}
	}

	ts := float32(frameIndex) / float32(d.opts.FPS)
	buf.timestamps = append(buf.timestamps, ts)
	buf.frameIndex = append(buf.frameIndex, int64(frameIndex))
	taskIndex := d.taskFor(task)
	buf.taskIndex = append(buf.taskIndex, int64(taskIndex))
	buf.size++

	d.stats[features.KeyTimestamp].addScalar(float64(ts))
	d.stats[features.KeyFrameIndex].addScalar(float64(frameIndex))
	d.stats[features.KeyEpisodeIndex].addScalar(float64(buf.index))
	d.stats[features.KeyIndex].addScalar(float64(d.frames + frameIndex))
	d.stats[features.KeyTaskIndex].addScalar(float64(taskIndex))
	return nil
}

// taskFor returns the index of task, registering it if new. New tasks are
// written to tasks.jsonl when their episode is saved.
func (d *Dataset) taskFor(task string) int {
	if idx, ok := d.taskIndex[task]; ok {
		return idx
	}
	idx := len(d.tasks)
	d.tasks = append(d.tasks, task)
	d.taskIndex[task] = idx
	return idx
}

// SaveEpisode commits the buffered frames as one episode.
func (d *Dataset) SaveEpisode(ctx context.Context) error {
	if d.closed {
		return ErrClosed
	}
	buf := d.buffer
	if buf.size == 0 {
		return ErrEmptyEpisode
	}
	log := d.logger.With("episode_index", buf.index)

	if err := d.images.wait(); err != nil {
		return fmt.Errorf("save episode %d: write images: %w", buf.index, err)
	}

	dataPath := filepath.Join(d.opts.Root, dataFile(buf.index, d.opts.ChunkSize))
	if err := writeParquet(dataPath, d.features, buf, int64(d.frames)); err != nil {
		return fmt.Errorf("save episode %d: %w", buf.index, err)
	}

	for _, key := range d.features.Keys() {
		f, _ := d.features.Get(key)
		if f.DType != features.Video {
			continue
		}
		frames := filepath.Join(d.opts.Root, imageDir(key, buf.index))
		dest := filepath.Join(d.opts.Root, videoFile(key, buf.index, d.opts.ChunkSize))
		if err := encodeVideo(ctx, d.opts.FFmpegBinary, d.opts.VideoCodec, frames, dest, d.opts.FPS); err != nil {
			return fmt.Errorf("save episode %d: %w", buf.index, err)
		}
		if err := os.RemoveAll(frames); err != nil {
			return fmt.Errorf("save episode %d: remove frames: %w", buf.index, err)
		}
		d.videos++
	}

	for i := d.savedTasks; i < len(d.tasks); i++ {
		if err := appendJSONLine(filepath.Join(d.opts.Root, TasksPath), TaskEntry{TaskIndex: i, Task: d.tasks[i]}); err != nil {
			return fmt.Errorf("save episode %d: %w", buf.index, err)
		}
	}
	entry := EpisodeEntry{EpisodeIndex: buf.index, Tasks: buf.tasks, Length: buf.size}
	if err := appendJSONLine(filepath.Join(d.opts.Root, EpisodesPath), entry); err != nil {
		return fmt.Errorf("save episode %d: %w", buf.index, err)
	}

	d.episodes++
	d.frames += buf.size
	d.buffer = newEpisodeBuffer(buf.index + 1)
	d.savedTasks = len(d.tasks)

	if err := d.writeInfo(); err != nil {
		return err
	}
	log.Debug("episode saved", "length", entry.Length)
	return nil
}

// Consolidate writes meta/stats.json and the final info.json. All episodes
// must have been saved.
func (d *Dataset) Consolidate(ctx context.Context) error {
	if d.closed {
		return ErrClosed
	}
	if d.buffer.size > 0 {
		return fmt.Errorf("consolidate: episode %d has %d unsaved frames", d.buffer.index, d.buffer.size)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.images.wait(); err != nil {
		return fmt.Errorf("consolidate: write images: %w", err)
	}

	stats := make(map[string]featureStats, len(d.stats))
	for key, s := range d.stats {
		f, ok := d.features.Get(key)
		stats[key] = s.result(ok && f.DType.IsVisual())
	}
	if err := writeJSONFile(filepath.Join(d.opts.Root, StatsPath), stats); err != nil {
		return fmt.Errorf("consolidate: %w", err)
	}
	if err := d.writeInfo(); err != nil {
		return fmt.Errorf("consolidate: %w", err)
	}
	d.logger.Info("dataset consolidated", "episodes", d.episodes, "frames", d.frames, "tasks", len(d.tasks))
	return nil
}

// Info returns the current meta/info.json content.
func (d *Dataset) Info() Info {
	info := Info{
		CodebaseVersion: CodebaseVersion,
		RobotType:       d.opts.RobotType,
		TotalEpisodes:   d.episodes,
		TotalFrames:     d.frames,
		TotalTasks:      d.savedTasks,
		TotalVideos:     d.videos,
		ChunksSize:      d.opts.ChunkSize,
		FPS:             d.opts.FPS,
		Splits:          map[string]string{"train": fmt.Sprintf("0:%d", d.episodes)},
		DataPath:        DataPathTemplate,
		Features:        d.features.WithDefaults(),
	}
	if d.episodes > 0 {
		info.TotalChunks = episodeChunk(d.episodes-1, d.opts.ChunkSize) + 1
	}
	for _, key := range d.features.Keys() {
		if f, _ := d.features.Get(key); f.DType == features.Video {
			p := VideoPathTemplate
			info.VideoPath = &p
			break
		}
	}
	return info
}

func (d *Dataset) writeInfo() error {
	if err := writeJSONFile(filepath.Join(d.opts.Root, InfoPath), d.Info()); err != nil {
		return fmt.Errorf("write info: %w", err)
	}
	return nil
}

// Close stops the image writer and releases the lock. Frames of an unsaved
// episode are dropped.
func (d *Dataset) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.images.stop()
	if d.buffer.size > 0 {
		d.logger.Warn("closing with unsaved frames", "episode_index", d.buffer.index, "frames", d.buffer.size)
	}

	var errs []error
	if err := d.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("release lock: %w", err))
	}
	if err := os.Remove(d.lock.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove lock: %w", err))
	}
	return errors.Join(errs...)
}

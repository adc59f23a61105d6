package dataset

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gwillem/zarr2lerobot/pkg/features"
)

var (
	// ErrInvalidFrame is returned when a frame does not match the schema.
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrEmptyEpisode is returned when saving an episode without frames.
	ErrEmptyEpisode = errors.New("episode has no frames")
	// ErrExists is returned when creating a dataset over an existing one.
	ErrExists = errors.New("dataset already exists")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("dataset closed")
)

// Frame maps feature names to values: []float32 for vectors, Image for
// visual features, and a string under features.KeyTask.
type Frame map[string]any

// Image is a row-major height×width×channels pixel block.
type Image struct {
	Height   int
	Width    int
	Channels int
	Pix      []uint8
}

func (im Image) toImage() (image.Image, error) {
	rect := image.Rect(0, 0, im.Width, im.Height)
	switch im.Channels {
	case 1:
		return &image.Gray{Pix: im.Pix, Stride: im.Width, Rect: rect}, nil
	case 3:
		out := image.NewNRGBA(rect)
		for i, j := 0, 0; i < len(im.Pix); i, j = i+3, j+4 {
			out.Pix[j] = im.Pix[i]
			out.Pix[j+1] = im.Pix[i+1]
			out.Pix[j+2] = im.Pix[i+2]
			out.Pix[j+3] = 0xff
		}
		return out, nil
	case 4:
		return &image.NRGBA{Pix: im.Pix, Stride: 4 * im.Width, Rect: rect}, nil
	default:
		return nil, fmt.Errorf("encode image: %d channels", im.Channels)
	}
}

func writePNG(path string, im Image) error {
	img, err := im.toImage()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return nil
}

// validateFrame checks frame against the user-facing schema.
func validateFrame(fs features.Features, frame Frame) error {
	task, ok := frame[features.KeyTask]
	if !ok {
		return fmt.Errorf("%w: missing %q", ErrInvalidFrame, features.KeyTask)
	}
	if s, ok := task.(string); !ok || s == "" {
		return fmt.Errorf("%w: %q must be a non-empty string", ErrInvalidFrame, features.KeyTask)
	}

	for key := range frame {
		if key != features.KeyTask && !fs.Has(key) {
			return fmt.Errorf("%w: unknown feature %q", ErrInvalidFrame, key)
		}
	}

	for _, key := range fs.Keys() {
		f, _ := fs.Get(key)
		v, ok := frame[key]
		if !ok {
			return fmt.Errorf("%w: missing %q", ErrInvalidFrame, key)
		}
		switch f.DType {
		case features.Float32:
			vec, ok := v.([]float32)
			if !ok {
				return fmt.Errorf("%w: %q is %T, want []float32", ErrInvalidFrame, key, v)
			}
			if len(vec) != f.Size() {
				return fmt.Errorf("%w: %q has %d values, want shape %v", ErrInvalidFrame, key, len(vec), f.Shape)
			}
		case features.Image, features.Video:
			im, ok := v.(Image)
			if !ok {
				return fmt.Errorf("%w: %q is %T, want dataset.Image", ErrInvalidFrame, key, v)
			}
			if im.Height != f.Shape[0] || im.Width != f.Shape[1] || im.Channels != f.Shape[2] {
				return fmt.Errorf("%w: %q is %dx%dx%d, want shape %v", ErrInvalidFrame, key, im.Height, im.Width, im.Channels, f.Shape)
			}
			if len(im.Pix) != f.Size() {
				return fmt.Errorf("%w: %q has %d bytes, want %d", ErrInvalidFrame, key, len(im.Pix), f.Size())
			}
		}
	}
	return nil
}

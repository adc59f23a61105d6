// Package replay opens diffusion-policy style replay buffers: a zarr group
// with the per-frame arrays under data/ and episode bookkeeping under meta/.
package replay

import (
	"fmt"

	"github.com/gwillem/zarr2lerobot/pkg/zarr"
)

const (
	dataGroup      = "data"
	metaGroup      = "meta"
	episodeEndsKey = "episode_ends"
)

// Buffer is a read-only handle on a replay buffer store.
type Buffer struct {
	root *zarr.Group
	data *zarr.Group
	meta *zarr.Group
}

// Open opens the replay buffer at path. Missing or malformed stores are
// reported with zarr.ErrNotFound or zarr.ErrCorrupt.
func Open(path string) (*Buffer, error) {
	root, err := zarr.OpenGroup(path)
	if err != nil {
		return nil, fmt.Errorf("open replay buffer: %w", err)
	}
	data, err := root.Group(dataGroup)
	if err != nil {
		return nil, fmt.Errorf("open replay buffer data: %w", err)
	}
	meta, err := root.Group(metaGroup)
	if err != nil {
		return nil, fmt.Errorf("open replay buffer meta: %w", err)
	}
	return &Buffer{root: root, data: data, meta: meta}, nil
}

// Path returns the store directory.
func (b *Buffer) Path() string {
	return b.root.Path()
}

// Attrs returns the store's root attributes, or nil when there are none.
func (b *Buffer) Attrs() map[string]any {
	return b.root.Attrs()
}

// Keys returns the names of the per-frame arrays.
func (b *Buffer) Keys() ([]string, error) {
	return b.data.Arrays()
}

// MetaKeys returns the names of the meta arrays.
func (b *Buffer) MetaKeys() ([]string, error) {
	return b.meta.Arrays()
}

// Array opens a per-frame array by key.
func (b *Buffer) Array(key string) (*zarr.Array, error) {
	return b.data.Array(key)
}

// MetaArray opens a meta array by key.
func (b *Buffer) MetaArray(key string) (*zarr.Array, error) {
	return b.meta.Array(key)
}

// EpisodeEnds reads meta/episode_ends.
func (b *Buffer) EpisodeEnds() ([]int64, error) {
	a, err := b.meta.Array(episodeEndsKey)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", episodeEndsKey, err)
	}
	ends, err := a.Int64s()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", episodeEndsKey, err)
	}
	return ends, nil
}

// Float32s reads a 2-D per-frame array as a float32 matrix.
func (b *Buffer) Float32s(key string) (Matrix, error) {
	a, err := b.data.Array(key)
	if err != nil {
		return Matrix{}, fmt.Errorf("open %s: %w", key, err)
	}
	shape := a.Shape()
	if len(shape) != 2 {
		return Matrix{}, fmt.Errorf("read %s: want a 2-D array, got shape %v", key, shape)
	}
	data, err := a.Float32s()
	if err != nil {
		return Matrix{}, fmt.Errorf("read %s: %w", key, err)
	}
	return Matrix{Rows: shape[0], Cols: shape[1], Data: data}, nil
}

// Images opens an N×H×W×C uint8 per-frame array for lazy reading.
func (b *Buffer) Images(key string) (*Images, error) {
	a, err := b.data.Array(key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return NewImages(a)
}

package zarr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// CreateGroup creates (or reuses) a group directory at path.
func CreateGroup(path string) (*Group, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	if err := writeJSON(filepath.Join(path, groupFile), map[string]int{"zarr_format": FormatVersion}); err != nil {
		return nil, err
	}
	return &Group{path: path}, nil
}

// CreateGroup creates a child group.
func (g *Group) CreateGroup(name string) (*Group, error) {
	return CreateGroup(filepath.Join(g.path, name))
}

// WriteArray writes a complete array from raw C-ordered element bytes.
func (g *Group) WriteArray(name string, meta Metadata, data []byte) (*Array, error) {
	path := filepath.Join(g.path, name)
	a, err := newArray(path, meta)
	if err != nil {
		return nil, err
	}
	if want := a.NumElements() * a.dtype.Size; len(data) != want {
		return nil, fmt.Errorf("write array %s: got %d bytes, want %d", name, len(data), want)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create array: %w", err)
	}
	if err := writeJSON(filepath.Join(path, arrayFile), meta); err != nil {
		return nil, err
	}
	if len(meta.Shape) == 0 {
		return a, a.writeChunk(nil, data)
	}
	if len(data) == 0 {
		return a, nil
	}

	shape, chunks := meta.Shape, meta.Chunks
	grid := GridShape(shape, chunks)
	lo := make([]int, len(grid))
	hi := make([]int, len(grid))
	for i := range grid {
		hi[i] = grid[i] - 1
	}

	coords := make([]int, len(grid))
	for {
		chunk := make([]byte, len(a.fill))
		copy(chunk, a.fill)

		b := box{
			itemSize: a.dtype.Size,
			count:    make([]int, len(shape)),
			src:      data,
			srcShape: shape,
			srcOff:   make([]int, len(shape)),
			dst:      chunk,
			dstShape: chunks,
			dstOff:   make([]int, len(shape)),
		}
		for i := range shape {
			start := coords[i] * chunks[i]
			b.srcOff[i] = start
			b.count[i] = min(chunks[i], shape[i]-start)
		}
		b.copy()

		if err := a.writeChunk(coords, chunk); err != nil {
			return nil, err
		}
		if !nextCoords(coords, lo, hi) {
			break
		}
	}
	return a, nil
}

func (a *Array) writeChunk(coords []int, chunk []byte) error {
	key := ChunkKey(coords, a.meta.separator())
	encoded, err := a.codec.Encode(chunk)
	if err != nil {
		return fmt.Errorf("encode chunk %s: %w", key, err)
	}
	path := filepath.Join(a.path, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create chunk dir: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write chunk %s: %w", key, err)
	}
	return nil
}

// EncodeFloat32s encodes values as little-endian "<f4" bytes.
func EncodeFloat32s(values []float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// EncodeInt64s encodes values as little-endian "<i8" bytes.
func EncodeInt64s(values []int64) []byte {
	out := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
	}
	return out
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

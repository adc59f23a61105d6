package zarr

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
)

// ReadAll reads the whole array as raw C-ordered element bytes.
func (a *Array) ReadAll() ([]byte, error) {
	lo := make([]int, len(a.meta.Shape))
	return a.readRegion(lo, a.meta.Shape)
}

// ReadRows reads indices [start, end) of the first dimension, all other
// dimensions in full. The returned buffer is freshly allocated.
func (a *Array) ReadRows(start, end int) ([]byte, error) {
	if len(a.meta.Shape) == 0 {
		return nil, fmt.Errorf("read rows: array %s is 0-dimensional", a.path)
	}
	if start < 0 || end > a.meta.Shape[0] || start > end {
		return nil, fmt.Errorf("read rows: range [%d, %d) out of bounds for length %d", start, end, a.meta.Shape[0])
	}
	lo := make([]int, len(a.meta.Shape))
	hi := append([]int(nil), a.meta.Shape...)
	lo[0], hi[0] = start, end
	return a.readRegion(lo, hi)
}

func (a *Array) readRegion(lo, hi []int) ([]byte, error) {
	itemSize := a.dtype.Size
	if len(a.meta.Shape) == 0 {
		chunk, err := a.readChunk(nil)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), chunk[:itemSize]...), nil
	}

	outShape := make([]int, len(lo))
	for i := range lo {
		outShape[i] = hi[i] - lo[i]
	}
	out := make([]byte, product(outShape)*itemSize)
	if len(out) == 0 {
		return out, nil
	}

	chunks := a.meta.Chunks
	cLo := make([]int, len(lo))
	cHi := make([]int, len(lo))
	for i := range lo {
		cLo[i] = lo[i] / chunks[i]
		cHi[i] = (hi[i] - 1) / chunks[i]
	}

	coords := append([]int(nil), cLo...)
	for {
		data, err := a.readChunk(coords)
		if err != nil {
			return nil, err
		}

		b := box{
			itemSize: itemSize,
			count:    make([]int, len(lo)),
			src:      data,
			srcShape: chunks,
			srcOff:   make([]int, len(lo)),
			dst:      out,
			dstShape: outShape,
			dstOff:   make([]int, len(lo)),
		}
		for i := range lo {
			chunkStart := coords[i] * chunks[i]
			s := max(lo[i], chunkStart)
			e := min(hi[i], chunkStart+chunks[i])
			b.count[i] = e - s
			b.srcOff[i] = s - chunkStart
			b.dstOff[i] = s - lo[i]
		}
		b.copy()

		if !nextCoords(coords, cLo, cHi) {
			break
		}
	}
	return out, nil
}

// readChunk returns the decoded bytes of one full chunk. Missing chunks
// decode to fill_value.
func (a *Array) readChunk(coords []int) ([]byte, error) {
	key := ChunkKey(coords, a.meta.separator())
	raw, err := os.ReadFile(filepath.Join(a.path, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return a.fill, nil
		}
		return nil, fmt.Errorf("read chunk %s: %w", key, err)
	}
	data, err := a.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode chunk %s/%s: %w", filepath.Base(a.path), key, err)
	}
	if len(data) != len(a.fill) {
		return nil, fmt.Errorf("%w: chunk %s/%s has %d bytes, want %d", ErrCorrupt, filepath.Base(a.path), key, len(data), len(a.fill))
	}
	return data, nil
}

// Float32s reads the whole array converted to float32.
func (a *Array) Float32s() ([]float32, error) {
	raw, err := a.ReadAll()
	if err != nil {
		return nil, err
	}
	return DecodeFloat32s(a.dtype, raw), nil
}

// Int64s reads the whole array converted to int64. Float arrays are rejected.
func (a *Array) Int64s() ([]int64, error) {
	if a.dtype.Kind == Float {
		return nil, fmt.Errorf("read %s: dtype %s is not an integer type", filepath.Base(a.path), a.dtype)
	}
	raw, err := a.ReadAll()
	if err != nil {
		return nil, err
	}
	n := len(raw) / a.dtype.Size
	out := make([]int64, n)
	for i := range out {
		out[i] = a.dtype.int64At(raw[i*a.dtype.Size:])
	}
	return out, nil
}

// DecodeFloat32s converts raw element bytes of dtype d to float32.
func DecodeFloat32s(d DType, raw []byte) []float32 {
	n := len(raw) / d.Size
	out := make([]float32, n)
	if d.Kind == Float && d.Size == 4 {
		bo := d.byteOrder()
		for i := range out {
			out[i] = math.Float32frombits(bo.Uint32(raw[i*4:]))
		}
		return out
	}
	for i := range out {
		out[i] = float32(d.float64At(raw[i*d.Size:]))
	}
	return out
}

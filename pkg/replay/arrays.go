package replay

import (
	"fmt"
	"path/filepath"

	"github.com/gwillem/zarr2lerobot/pkg/zarr"
)

// Matrix is a row-major 2-D float32 array, one row per frame.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// Row returns row i as a sub-slice of Data (no copy).
func (m Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols : (i+1)*m.Cols]
}

// Images reads an N×H×W×C uint8 array one chunk row-block at a time.
// Access is expected to be mostly sequential.
type Images struct {
	arr      *zarr.Array
	n        int
	height   int
	width    int
	channels int
	rowsPer  int // frames per chunk along the first dimension

	cacheStart int
	cacheEnd   int
	cache      []byte
}

// NewImages wraps a uint8 array of rank 4.
func NewImages(a *zarr.Array) (*Images, error) {
	shape := a.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("images %s: want N×H×W×C, got shape %v", filepath.Base(a.Path()), shape)
	}
	if d := a.DType(); d.Kind != zarr.Uint || d.Size != 1 {
		return nil, fmt.Errorf("images %s: want uint8 pixels, got %s", filepath.Base(a.Path()), d)
	}
	return &Images{
		arr:      a,
		n:        shape[0],
		height:   shape[1],
		width:    shape[2],
		channels: shape[3],
		rowsPer:  a.Chunks()[0],
	}, nil
}

// Len returns the number of frames.
func (im *Images) Len() int { return im.n }

// Shape returns the per-frame height, width and channel count.
func (im *Images) Shape() (height, width, channels int) {
	return im.height, im.width, im.channels
}

// FrameSize returns the number of bytes per frame.
func (im *Images) FrameSize() int {
	return im.height * im.width * im.channels
}

// Frame returns the pixels of frame i. The slice stays valid after later
// calls; buffers are replaced, never overwritten.
func (im *Images) Frame(i int) ([]uint8, error) {
	if i < 0 || i >= im.n {
		return nil, fmt.Errorf("image frame %d out of range [0, %d)", i, im.n)
	}
	if im.cache == nil || i < im.cacheStart || i >= im.cacheEnd {
		start := (i / im.rowsPer) * im.rowsPer
		end := min(start+im.rowsPer, im.n)
		buf, err := im.arr.ReadRows(start, end)
		if err != nil {
			return nil, fmt.Errorf("read image frames [%d, %d): %w", start, end, err)
		}
		im.cache, im.cacheStart, im.cacheEnd = buf, start, end
	}
	size := im.FrameSize()
	off := (i - im.cacheStart) * size
	return im.cache[off : off+size : off+size], nil
}

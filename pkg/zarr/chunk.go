package zarr

import (
	"strconv"
	"strings"
)

// GridShape calculates the number of chunks in each dimension.
// For each dimension i, the number of chunks is ceil(shape[i] / chunks[i]).
func GridShape(shape, chunks []int) []int {
	grid := make([]int, len(shape))
	for i := range shape {
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid
}

// ChunkKey generates the key for a chunk given its indices and a separator.
// Example: indices=[1, 4], separator="." -> "1.4"
// For 0D arrays (empty indices), it returns "0".
func ChunkKey(indices []int, separator string) string {
	if len(indices) == 0 {
		return "0"
	}
	if len(indices) == 1 {
		return strconv.Itoa(indices[0])
	}

	var sb strings.Builder
	for i, idx := range indices {
		if i > 0 {
			sb.WriteString(separator)
		}
		sb.WriteString(strconv.Itoa(idx))
	}
	return sb.String()
}

func product(xs []int) int {
	n := 1
	for _, x := range xs {
		n *= x
	}
	return n
}

// strides returns C-order element strides for shape.
func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// box describes a hyper-rectangle copy between two C-ordered buffers.
type box struct {
	itemSize int
	count    []int // extent of the copied region per dimension

	src      []byte
	srcShape []int
	srcOff   []int

	dst      []byte
	dstShape []int
	dstOff   []int
}

// copy moves the region. The last dimension is copied as one contiguous run.
func (b box) copy() {
	if len(b.count) == 0 {
		copy(b.dst[:b.itemSize], b.src[:b.itemSize])
		return
	}
	for _, c := range b.count {
		if c <= 0 {
			return
		}
	}
	ss := strides(b.srcShape)
	ds := strides(b.dstShape)
	b.walk(0, 0, 0, ss, ds)
}

func (b box) walk(dim, srcBase, dstBase int, ss, ds []int) {
	last := len(b.count) - 1
	srcBase += b.srcOff[dim] * ss[dim]
	dstBase += b.dstOff[dim] * ds[dim]
	if dim == last {
		n := b.count[dim] * b.itemSize
		copy(b.dst[dstBase*b.itemSize:dstBase*b.itemSize+n], b.src[srcBase*b.itemSize:srcBase*b.itemSize+n])
		return
	}
	for i := 0; i < b.count[dim]; i++ {
		b.walk(dim+1, srcBase+i*ss[dim], dstBase+i*ds[dim], ss, ds)
	}
}

// nextCoords advances coords inside [lo, hi] like an odometer and reports
// whether a new coordinate was produced.
func nextCoords(coords, lo, hi []int) bool {
	for i := len(coords) - 1; i >= 0; i-- {
		if coords[i] < hi[i] {
			coords[i]++
			return true
		}
		coords[i] = lo[i]
	}
	return false
}

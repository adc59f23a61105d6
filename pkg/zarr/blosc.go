package zarr

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"
)

// Blosc1 frame layout.
const (
	bloscHeaderSize = 16
	bloscMaxSplits  = 16
	bloscMinBuffer  = 128

	bloscDoShuffle    = 0x01
	bloscMemcpyed     = 0x02
	bloscDoBitShuffle = 0x04
	bloscDontSplit    = 0x10

	bloscVersion   = 2
	bloscVersionLZ = 1
)

// Internal compressor codes stored in bits 5-7 of the flags byte.
const (
	bloscLZ = iota
	bloscLZ4
	bloscSnappy
	bloscZlib
	bloscZstd
)

var bloscNames = map[int]string{
	bloscLZ:     "blosclz",
	bloscLZ4:    "lz4",
	bloscSnappy: "snappy",
	bloscZlib:   "zlib",
	bloscZstd:   "zstd",
}

type bloscCodec struct {
	typeSize int
}

func (bloscCodec) ID() string { return "blosc" }

// Encode writes a memcpyed frame: valid blosc, stored uncompressed.
func (c bloscCodec) Encode(src []byte) ([]byte, error) {
	out := make([]byte, bloscHeaderSize+len(src))
	out[0] = bloscVersion
	out[1] = bloscVersionLZ
	out[2] = bloscMemcpyed | bloscDontSplit
	out[3] = byte(max(c.typeSize, 1))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(src)))
	binary.LittleEndian.PutUint32(out[8:], uint32(len(src)))
	binary.LittleEndian.PutUint32(out[12:], uint32(len(out)))
	copy(out[bloscHeaderSize:], src)
	return out, nil
}

func (bloscCodec) Decode(src []byte) ([]byte, error) {
	if len(src) < bloscHeaderSize {
		return nil, fmt.Errorf("%w: blosc frame of %d bytes", ErrCorrupt, len(src))
	}
	flags := src[2]
	typeSize := int(src[3])
	nbytes := int(binary.LittleEndian.Uint32(src[4:]))
	blocksize := int(binary.LittleEndian.Uint32(src[8:]))
	cbytes := int(binary.LittleEndian.Uint32(src[12:]))
	if cbytes > len(src) {
		return nil, fmt.Errorf("%w: blosc frame truncated (%d < %d)", ErrCorrupt, len(src), cbytes)
	}

	if flags&bloscMemcpyed != 0 {
		if bloscHeaderSize+nbytes > len(src) {
			return nil, fmt.Errorf("%w: blosc memcpyed frame truncated", ErrCorrupt)
		}
		out := make([]byte, nbytes)
		copy(out, src[bloscHeaderSize:])
		return out, nil
	}
	if flags&bloscDoBitShuffle != 0 {
		return nil, fmt.Errorf("%w: blosc bitshuffle", ErrUnsupportedCodec)
	}
	if nbytes == 0 {
		return []byte{}, nil
	}
	if blocksize <= 0 || typeSize <= 0 {
		return nil, fmt.Errorf("%w: blosc blocksize %d typesize %d", ErrCorrupt, blocksize, typeSize)
	}

	compcode := int(flags>>5) & 0x7
	decompress, err := bloscDecompressor(compcode)
	if err != nil {
		return nil, err
	}

	nblocks := nbytes / blocksize
	leftover := nbytes % blocksize
	if leftover > 0 {
		nblocks++
	}
	if bloscHeaderSize+4*nblocks > len(src) {
		return nil, fmt.Errorf("%w: blosc block table truncated", ErrCorrupt)
	}

	out := make([]byte, nbytes)
	tmp := make([]byte, blocksize)
	for j := 0; j < nblocks; j++ {
		bsize := blocksize
		isLeftover := leftover > 0 && j == nblocks-1
		if isLeftover {
			bsize = leftover
		}
		start := int(binary.LittleEndian.Uint32(src[bloscHeaderSize+4*j:]))

		nsplits := 1
		if flags&bloscDontSplit == 0 && typeSize <= bloscMaxSplits && bsize/typeSize >= bloscMinBuffer && !isLeftover {
			nsplits = typeSize
		}
		neblock := bsize / nsplits

		pos := start
		for s := 0; s < nsplits; s++ {
			if pos+4 > len(src) {
				return nil, fmt.Errorf("%w: blosc block %d truncated", ErrCorrupt, j)
			}
			csize := int(binary.LittleEndian.Uint32(src[pos:]))
			pos += 4
			if csize < 0 || pos+csize > len(src) {
				return nil, fmt.Errorf("%w: blosc block %d truncated", ErrCorrupt, j)
			}
			dst := tmp[s*neblock : (s+1)*neblock]
			if csize == neblock {
				copy(dst, src[pos:pos+csize])
			} else if err := decompress(src[pos:pos+csize], dst); err != nil {
				return nil, fmt.Errorf("blosc block %d: %w", j, err)
			}
			pos += csize
		}

		block := out[j*blocksize : j*blocksize+bsize]
		if flags&bloscDoShuffle != 0 && typeSize > 1 {
			unshuffle(block, tmp[:bsize], typeSize)
		} else {
			copy(block, tmp[:bsize])
		}
	}
	return out, nil
}

// bloscDecompressor returns a function that fills dst exactly from src.
func bloscDecompressor(code int) (func(src, dst []byte) error, error) {
	switch code {
	case bloscLZ4:
		return func(src, dst []byte) error {
			n, err := lz4.UncompressBlock(src, dst)
			if err != nil {
				return fmt.Errorf("lz4 decompress: %w", err)
			}
			return expectLen(n, len(dst))
		}, nil
	case bloscSnappy:
		return func(src, dst []byte) error {
			out, err := snappy.Decode(nil, src)
			if err != nil {
				return fmt.Errorf("snappy decompress: %w", err)
			}
			return expectLen(copy(dst, out), len(dst))
		}, nil
	case bloscZlib:
		return func(src, dst []byte) error {
			r, err := zlib.NewReader(bytes.NewReader(src))
			if err != nil {
				return fmt.Errorf("zlib reader: %w", err)
			}
			defer r.Close()
			n, err := io.ReadFull(r, dst)
			if err != nil {
				return fmt.Errorf("zlib decompress: %w", err)
			}
			return expectLen(n, len(dst))
		}, nil
	case bloscZstd:
		return func(src, dst []byte) error {
			dec, err := sharedZstdDecoder()
			if err != nil {
				return fmt.Errorf("zstd reader: %w", err)
			}
			out, err := dec.DecodeAll(src, nil)
			if err != nil {
				return fmt.Errorf("zstd decompress: %w", err)
			}
			return expectLen(copy(dst, out), len(dst))
		}, nil
	default:
		name, ok := bloscNames[code]
		if !ok {
			name = fmt.Sprintf("code %d", code)
		}
		return nil, fmt.Errorf("%w: blosc internal compressor %s", ErrUnsupportedCodec, name)
	}
}

func expectLen(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorrupt, got, want)
	}
	return nil
}

// unshuffle reverses blosc's byte shuffle: src holds all first bytes of each
// element, then all second bytes, and so on. Trailing bytes are copied as is.
func unshuffle(dst, src []byte, typeSize int) {
	n := len(src) / typeSize
	for b := 0; b < typeSize; b++ {
		for i := 0; i < n; i++ {
			dst[i*typeSize+b] = src[b*n+i]
		}
	}
	copy(dst[n*typeSize:], src[n*typeSize:])
}

package zarr

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Codec compresses and decompresses whole chunks.
type Codec interface {
	ID() string
	Decode(src []byte) ([]byte, error)
	Encode(src []byte) ([]byte, error)
}

// NewCodec returns the codec for a compressor configuration.
// A nil compressor means chunks are stored raw.
func NewCodec(c *Compressor, typeSize int) (Codec, error) {
	if c == nil {
		return rawCodec{}, nil
	}
	switch c.ID {
	case "zlib":
		return zlibCodec{level: levelOr(c.Level, zlib.DefaultCompression)}, nil
	case "gzip":
		return gzipCodec{level: levelOr(c.Level, gzip.DefaultCompression)}, nil
	case "zstd":
		return zstdCodec{level: c.Level}, nil
	case "blosc":
		return bloscCodec{typeSize: typeSize}, nil
	default:
		return nil, fmt.Errorf("%w: compressor %q", ErrUnsupportedCodec, c.ID)
	}
}

func levelOr(level, fallback int) int {
	if level == 0 {
		return fallback
	}
	return level
}

type rawCodec struct{}

func (rawCodec) ID() string                        { return "null" }
func (rawCodec) Decode(src []byte) ([]byte, error) { return src, nil }
func (rawCodec) Encode(src []byte) ([]byte, error) { return src, nil }

type zlibCodec struct {
	level int
}

func (zlibCodec) ID() string { return "zlib" }

func (zlibCodec) Decode(src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	return out, nil
}

func (c zlibCodec) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	return buf.Bytes(), nil
}

type gzipCodec struct {
	level int
}

func (gzipCodec) ID() string { return "gzip" }

func (gzipCodec) Decode(src []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	return out, nil
}

func (c gzipCodec) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	return buf.Bytes(), nil
}

// zstd decoders and encoders are safe for concurrent DecodeAll/EncodeAll use.
var (
	zstdOnce    sync.Once
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func sharedZstdDecoder() (*zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdDecoder, zstdErr
}

type zstdCodec struct {
	level int
}

func (zstdCodec) ID() string { return "zstd" }

func (zstdCodec) Decode(src []byte) ([]byte, error) {
	dec, err := sharedZstdDecoder()
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	out, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

func (c zstdCodec) Encode(src []byte) ([]byte, error) {
	level := zstd.SpeedDefault
	if c.level > 0 {
		level = zstd.EncoderLevelFromZstd(c.level)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(src, nil), nil
}

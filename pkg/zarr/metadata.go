// Package zarr reads and writes Zarr v2 directory stores.
//
// Only the parts of the format used by robot replay buffers are covered:
// C-ordered arrays, numeric and bool dtypes, and the null, zlib, gzip, zstd
// and blosc compressors. Filters are not supported.
package zarr

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// FormatVersion is the only zarr_format this package understands.
const FormatVersion = 2

const (
	groupFile = ".zgroup"
	arrayFile = ".zarray"
	attrsFile = ".zattrs"
)

var (
	// ErrNotFound is returned when a store, group or array does not exist.
	ErrNotFound = errors.New("zarr: not found")
	// ErrCorrupt is returned when metadata or chunk data cannot be interpreted.
	ErrCorrupt = errors.New("zarr: corrupt store")
	// ErrUnsupportedCodec is returned for compressors or filters this build cannot decode.
	ErrUnsupportedCodec = errors.New("zarr: unsupported codec")
)

// Metadata represents the Zarr V2 .zarray metadata.
type Metadata struct {
	Chunks             []int           `json:"chunks"`
	Compressor         *Compressor     `json:"compressor"`
	DType              string          `json:"dtype"`
	FillValue          json.RawMessage `json:"fill_value"`
	Filters            []any           `json:"filters"`
	Order              string          `json:"order"`
	Shape              []int           `json:"shape"`
	ZarrFormat         int             `json:"zarr_format"`
	DimensionSeparator string          `json:"dimension_separator,omitempty"`
}

// Compressor represents the numcodecs compressor configuration.
// Fields that do not apply to a codec are left zero.
type Compressor struct {
	ID        string `json:"id"`
	Level     int    `json:"level,omitempty"`
	CName     string `json:"cname,omitempty"`
	CLevel    int    `json:"clevel,omitempty"`
	Shuffle   int    `json:"shuffle,omitempty"`
	Blocksize int    `json:"blocksize,omitempty"`
}

// NewMetadata returns C-ordered metadata with a zero fill value.
func NewMetadata(shape, chunks []int, dtype string, comp *Compressor) Metadata {
	return Metadata{
		Chunks:     append([]int(nil), chunks...),
		Compressor: comp,
		DType:      dtype,
		FillValue:  json.RawMessage("0"),
		Order:      "C",
		Shape:      append([]int(nil), shape...),
		ZarrFormat: FormatVersion,
	}
}

func (m Metadata) validate() error {
	if m.ZarrFormat != FormatVersion {
		return fmt.Errorf("%w: zarr_format %d", ErrCorrupt, m.ZarrFormat)
	}
	if len(m.Shape) != len(m.Chunks) {
		return fmt.Errorf("%w: shape %v and chunks %v differ in rank", ErrCorrupt, m.Shape, m.Chunks)
	}
	for i := range m.Shape {
		if m.Shape[i] < 0 || m.Chunks[i] <= 0 {
			return fmt.Errorf("%w: invalid shape %v / chunks %v", ErrCorrupt, m.Shape, m.Chunks)
		}
	}
	if m.Order != "" && m.Order != "C" {
		return fmt.Errorf("%w: order %q", ErrUnsupportedCodec, m.Order)
	}
	if len(m.Filters) > 0 {
		return fmt.Errorf("%w: filters %v", ErrUnsupportedCodec, m.Filters)
	}
	switch m.DimensionSeparator {
	case "", ".", "/":
	default:
		return fmt.Errorf("%w: dimension_separator %q", ErrCorrupt, m.DimensionSeparator)
	}
	return nil
}

func (m Metadata) separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}

// Kind is the numeric family of a dtype.
type Kind byte

const (
	Bool  Kind = 'b'
	Int   Kind = 'i'
	Uint  Kind = 'u'
	Float Kind = 'f'
)

// DType is a parsed numpy-style dtype string such as "<f4" or "|u1".
type DType struct {
	Kind      Kind
	Size      int
	BigEndian bool
}

// ParseDType parses a Zarr dtype string (e.g., "<f4", "|b1").
func ParseDType(s string) (DType, error) {
	if len(s) < 3 {
		return DType{}, fmt.Errorf("%w: dtype %q", ErrCorrupt, s)
	}
	var d DType
	switch s[0] {
	case '<', '|':
	case '>':
		d.BigEndian = true
	default:
		return DType{}, fmt.Errorf("%w: dtype %q", ErrCorrupt, s)
	}
	d.Kind = Kind(s[1])
	size, err := strconv.Atoi(s[2:])
	if err != nil {
		return DType{}, fmt.Errorf("%w: dtype %q", ErrCorrupt, s)
	}
	d.Size = size

	valid := false
	switch d.Kind {
	case Bool:
		valid = size == 1
	case Int, Uint:
		valid = size == 1 || size == 2 || size == 4 || size == 8
	case Float:
		valid = size == 4 || size == 8
	}
	if !valid {
		return DType{}, fmt.Errorf("%w: dtype %q", ErrUnsupportedCodec, s)
	}
	return d, nil
}

// String returns the canonical dtype string.
func (d DType) String() string {
	order := byte('<')
	if d.Size == 1 {
		order = '|'
	} else if d.BigEndian {
		order = '>'
	}
	return fmt.Sprintf("%c%c%d", order, d.Kind, d.Size)
}

func (d DType) byteOrder() binary.ByteOrder {
	if d.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// float64At decodes the element stored at b[:d.Size].
func (d DType) float64At(b []byte) float64 {
	bo := d.byteOrder()
	switch d.Kind {
	case Bool:
		if b[0] != 0 {
			return 1
		}
		return 0
	case Int:
		switch d.Size {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(bo.Uint16(b)))
		case 4:
			return float64(int32(bo.Uint32(b)))
		default:
			return float64(int64(bo.Uint64(b)))
		}
	case Uint:
		switch d.Size {
		case 1:
			return float64(b[0])
		case 2:
			return float64(bo.Uint16(b))
		case 4:
			return float64(bo.Uint32(b))
		default:
			return float64(bo.Uint64(b))
		}
	default:
		if d.Size == 4 {
			return float64(math.Float32frombits(bo.Uint32(b)))
		}
		return math.Float64frombits(bo.Uint64(b))
	}
}

func (d DType) int64At(b []byte) int64 {
	bo := d.byteOrder()
	switch {
	case d.Size == 1 && d.Kind == Int:
		return int64(int8(b[0]))
	case d.Size == 1:
		return int64(b[0])
	case d.Size == 2 && d.Kind == Int:
		return int64(int16(bo.Uint16(b)))
	case d.Size == 2:
		return int64(bo.Uint16(b))
	case d.Size == 4 && d.Kind == Int:
		return int64(int32(bo.Uint32(b)))
	case d.Size == 4:
		return int64(bo.Uint32(b))
	default:
		return int64(bo.Uint64(b))
	}
}

// putFloat64 encodes v into b[:d.Size].
func (d DType) putFloat64(b []byte, v float64) {
	bo := d.byteOrder()
	switch d.Kind {
	case Bool:
		if v != 0 {
			b[0] = 1
		} else {
			b[0] = 0
		}
	case Int, Uint:
		switch d.Size {
		case 1:
			b[0] = byte(int64(v))
		case 2:
			bo.PutUint16(b, uint16(int64(v)))
		case 4:
			bo.PutUint32(b, uint32(int64(v)))
		default:
			bo.PutUint64(b, uint64(int64(v)))
		}
	default:
		if d.Size == 4 {
			bo.PutUint32(b, math.Float32bits(float32(v)))
		} else {
			bo.PutUint64(b, math.Float64bits(v))
		}
	}
}

// parseFillValue interprets the fill_value JSON. null decodes as zero.
func parseFillValue(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: fill_value: %v", ErrCorrupt, err)
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		switch x {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
	}
	return 0, fmt.Errorf("%w: fill_value %s", ErrCorrupt, raw)
}

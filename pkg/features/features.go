// Package features builds the LeRobot feature schema for each observation mode.
package features

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// DType is the storage type of a feature.
type DType string

const (
	Pending DType = ""
	Float32 DType = "float32"
	Int64   DType = "int64"
	Bool    DType = "bool"
	String  DType = "string"
	Image   DType = "image"
	Video   DType = "video"
)

// IsVisual reports whether the feature holds pixels.
func (d DType) IsVisual() bool {
	return d == Image || d == Video
}

// Feature describes one field of a frame.
type Feature struct {
	DType DType
	Shape []int
	Names []string
	// NamesKey, when set, serialises Names as {NamesKey: Names}.
	NamesKey string
	// Info carries writer-provided details such as video encoding settings.
	Info map[string]any
}

// Clone returns a deep copy.
func (f Feature) Clone() Feature {
	c := f
	c.Shape = slices.Clone(f.Shape)
	c.Names = slices.Clone(f.Names)
	if f.Info != nil {
		c.Info = make(map[string]any, len(f.Info))
		for k, v := range f.Info {
			c.Info[k] = v
		}
	}
	return c
}

// Size returns the number of scalar elements.
func (f Feature) Size() int {
	n := 1
	for _, d := range f.Shape {
		n *= d
	}
	return n
}

// MarshalJSON writes the LeRobot info.json feature entry. A pending dtype
// is written as null.
func (f Feature) MarshalJSON() ([]byte, error) {
	e := struct {
		DType any            `json:"dtype"`
		Shape []int          `json:"shape"`
		Names any            `json:"names"`
		Info  map[string]any `json:"info,omitempty"`
	}{DType: f.DType, Shape: f.Shape, Info: f.Info}
	if f.DType == Pending {
		e.DType = nil
	}
	if e.Shape == nil {
		e.Shape = []int{}
	}
	switch {
	case f.Names == nil:
		e.Names = nil
	case f.NamesKey != "":
		e.Names = map[string][]string{f.NamesKey: f.Names}
	default:
		e.Names = f.Names
	}
	return json.Marshal(e)
}

// Features is an ordered mapping of feature name to Feature. The zero
// value is empty and ready to use. Mutating methods return a new value.
type Features struct {
	keys []string
	m    map[string]Feature
}

// Keys returns feature names in insertion order.
func (fs Features) Keys() []string {
	return slices.Clone(fs.keys)
}

// Len returns the number of features.
func (fs Features) Len() int {
	return len(fs.keys)
}

// Get returns a copy of the named feature.
func (fs Features) Get(name string) (Feature, bool) {
	f, ok := fs.m[name]
	if !ok {
		return Feature{}, false
	}
	return f.Clone(), true
}

// Has reports whether the named feature exists.
func (fs Features) Has(name string) bool {
	_, ok := fs.m[name]
	return ok
}

// Clone returns a deep copy.
func (fs Features) Clone() Features {
	c := Features{keys: slices.Clone(fs.keys), m: make(map[string]Feature, len(fs.m))}
	for k, f := range fs.m {
		c.m[k] = f.Clone()
	}
	return c
}

// Set returns a copy with name set to f. New names are appended; existing
// names keep their position.
func (fs Features) Set(name string, f Feature) Features {
	c := fs.Clone()
	if _, ok := c.m[name]; !ok {
		c.keys = append(c.keys, name)
	}
	c.m[name] = f.Clone()
	return c
}

// Without returns a copy with name removed.
func (fs Features) Without(name string) Features {
	c := fs.Clone()
	if _, ok := c.m[name]; !ok {
		return c
	}
	delete(c.m, name)
	c.keys = slices.DeleteFunc(c.keys, func(k string) bool { return k == name })
	return c
}

// MarshalJSON writes features as an object in insertion order.
func (fs Features) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range fs.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(fs.m[k])
		if err != nil {
			return nil, fmt.Errorf("encode feature %s: %w", k, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ErrUnsupportedMode is returned by ParseMode for unknown modes.
var ErrUnsupportedMode = errors.New("unsupported mode")

// Mode selects how observations are represented.
type Mode string

const (
	ModeImage     Mode = "image"
	ModeVideo     Mode = "video"
	ModeKeypoints Mode = "keypoints"
)

// AllModes returns every known mode.
func AllModes() []Mode {
	return []Mode{ModeImage, ModeVideo, ModeKeypoints}
}

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	for _, m := range AllModes() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want image, video or keypoints)", ErrUnsupportedMode, s)
}

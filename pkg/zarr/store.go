package zarr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Group is a zarr group backed by a directory.
type Group struct {
	path  string
	attrs map[string]any
}

// OpenGroup opens the group stored at path.
func OpenGroup(path string) (*Group, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrCorrupt, path)
	}

	var meta struct {
		ZarrFormat int `json:"zarr_format"`
	}
	if err := readJSON(filepath.Join(path, groupFile), &meta); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s has no %s", ErrCorrupt, path, groupFile)
		}
		return nil, err
	}
	if meta.ZarrFormat != FormatVersion {
		return nil, fmt.Errorf("%w: group zarr_format %d", ErrCorrupt, meta.ZarrFormat)
	}

	g := &Group{path: path}
	if err := readJSON(filepath.Join(path, attrsFile), &g.attrs); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return g, nil
}

// Path returns the directory backing the group.
func (g *Group) Path() string {
	return g.path
}

// Attrs returns the group's .zattrs, or nil when there are none.
func (g *Group) Attrs() map[string]any {
	return g.attrs
}

// Group opens a child group.
func (g *Group) Group(name string) (*Group, error) {
	return OpenGroup(filepath.Join(g.path, name))
}

// Array opens a child array.
func (g *Group) Array(name string) (*Array, error) {
	return OpenArray(filepath.Join(g.path, name))
}

// Arrays returns the sorted names of child arrays.
func (g *Group) Arrays() ([]string, error) {
	return g.children(arrayFile)
}

// Groups returns the sorted names of child groups.
func (g *Group) Groups() ([]string, error) {
	return g.children(groupFile)
}

func (g *Group) children(marker string) ([]string, error) {
	entries, err := os.ReadDir(g.path)
	if err != nil {
		return nil, fmt.Errorf("list group: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(g.path, e.Name(), marker)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Array is a chunked n-dimensional array.
type Array struct {
	path  string
	meta  Metadata
	dtype DType
	codec Codec
	fill  []byte // one full chunk of fill_value
}

// OpenArray opens the array stored at path.
func OpenArray(path string) (*Array, error) {
	var meta Metadata
	if err := readJSON(filepath.Join(path, arrayFile), &meta); err != nil {
		return nil, err
	}
	return newArray(path, meta)
}

func newArray(path string, meta Metadata) (*Array, error) {
	if err := meta.validate(); err != nil {
		return nil, fmt.Errorf("array %s: %w", path, err)
	}
	dtype, err := ParseDType(meta.DType)
	if err != nil {
		return nil, fmt.Errorf("array %s: %w", path, err)
	}
	codec, err := NewCodec(meta.Compressor, dtype.Size)
	if err != nil {
		return nil, fmt.Errorf("array %s: %w", path, err)
	}
	fillValue, err := parseFillValue(meta.FillValue)
	if err != nil {
		return nil, fmt.Errorf("array %s: %w", path, err)
	}

	fill := make([]byte, product(meta.Chunks)*dtype.Size)
	if fillValue != 0 {
		for off := 0; off < len(fill); off += dtype.Size {
			dtype.putFloat64(fill[off:], fillValue)
		}
	}

	return &Array{
		path:  path,
		meta:  meta,
		dtype: dtype,
		codec: codec,
		fill:  fill,
	}, nil
}

// Path returns the directory backing the array.
func (a *Array) Path() string { return a.path }

// Metadata returns a copy of the .zarray metadata.
func (a *Array) Metadata() Metadata {
	m := a.meta
	m.Shape = append([]int(nil), a.meta.Shape...)
	m.Chunks = append([]int(nil), a.meta.Chunks...)
	return m
}

// Shape returns the array shape.
func (a *Array) Shape() []int { return append([]int(nil), a.meta.Shape...) }

// Chunks returns the chunk shape.
func (a *Array) Chunks() []int { return append([]int(nil), a.meta.Chunks...) }

// DType returns the element type.
func (a *Array) DType() DType { return a.dtype }

// Len returns the extent of the first dimension.
func (a *Array) Len() int {
	if len(a.meta.Shape) == 0 {
		return 1
	}
	return a.meta.Shape[0]
}

// NumElements returns the total number of elements.
func (a *Array) NumElements() int { return product(a.meta.Shape) }

// StoredBytes sums the on-disk size of all chunk files.
func (a *Array) StoredBytes() (int64, error) {
	var total int64
	err := filepath.WalkDir(a.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == arrayFile || d.Name() == attrsFile {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk array: %w", err)
	}
	return total, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrCorrupt, path, err)
	}
	return nil
}

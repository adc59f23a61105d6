package replay

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gwillem/zarr2lerobot/pkg/zarr"
)

// writeStore builds a two-episode buffer: ends [3, 7], 3-float pos and
// action, 2×2×1 images chunked two frames at a time.
func writeStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.zarr")
	root, err := zarr.CreateGroup(path)
	if err != nil {
		t.Fatal(err)
	}
	data, err := root.CreateGroup("data")
	if err != nil {
		t.Fatal(err)
	}
	meta, err := root.CreateGroup("meta")
	if err != nil {
		t.Fatal(err)
	}

	pos := make([]float32, 7*3)
	for i := range pos {
		pos[i] = float32(i)
	}
	if _, err := data.WriteArray("robot_eef_pos", zarr.NewMetadata([]int{7, 3}, []int{4, 3}, "<f4", &zarr.Compressor{ID: "zlib"}), zarr.EncodeFloat32s(pos)); err != nil {
		t.Fatal(err)
	}
	img := make([]byte, 7*4)
	for i := range img {
		img[i] = byte(i)
	}
	if _, err := data.WriteArray("camera_1", zarr.NewMetadata([]int{7, 2, 2, 1}, []int{2, 2, 2, 1}, "|u1", nil), img); err != nil {
		t.Fatal(err)
	}
	if _, err := meta.WriteArray("episode_ends", zarr.NewMetadata([]int{2}, []int{2}, "<i8", nil), zarr.EncodeInt64s([]int64{3, 7})); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenAndRead(t *testing.T) {
	buf, err := Open(writeStore(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	keys, err := buf.Keys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "camera_1" || keys[1] != "robot_eef_pos" {
		t.Errorf("Keys() = %v", keys)
	}

	ends, err := buf.EpisodeEnds()
	if err != nil {
		t.Fatal(err)
	}
	if len(ends) != 2 || ends[0] != 3 || ends[1] != 7 {
		t.Errorf("EpisodeEnds() = %v, want [3 7]", ends)
	}

	pos, err := buf.Float32s("robot_eef_pos")
	if err != nil {
		t.Fatal(err)
	}
	if pos.Rows != 7 || pos.Cols != 3 {
		t.Fatalf("matrix is %dx%d, want 7x3", pos.Rows, pos.Cols)
	}
	row := pos.Row(4)
	if row[0] != 12 || row[2] != 14 {
		t.Errorf("Row(4) = %v, want [12 13 14]", row)
	}
}

func TestImagesFrame(t *testing.T) {
	buf, err := Open(writeStore(t))
	if err != nil {
		t.Fatal(err)
	}
	images, err := buf.Images("camera_1")
	if err != nil {
		t.Fatal(err)
	}
	if h, w, c := images.Shape(); h != 2 || w != 2 || c != 1 {
		t.Errorf("Shape() = %d,%d,%d, want 2,2,1", h, w, c)
	}

	first, err := images.Frame(1)
	if err != nil {
		t.Fatal(err)
	}
	// Crossing into the next chunk must not disturb the earlier slice.
	for i := 2; i < images.Len(); i++ {
		frame, err := images.Frame(i)
		if err != nil {
			t.Fatalf("Frame(%d): %v", i, err)
		}
		if frame[0] != byte(i*4) {
			t.Errorf("Frame(%d)[0] = %d, want %d", i, frame[0], i*4)
		}
	}
	if first[0] != 4 || first[3] != 7 {
		t.Errorf("Frame(1) = %v, want [4 5 6 7]", first)
	}

	if _, err := images.Frame(7); err == nil {
		t.Error("Frame(7) should be out of range")
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.zarr")); !errors.Is(err, zarr.ErrNotFound) {
		t.Errorf("Open(missing) error = %v, want ErrNotFound", err)
	}

	path := filepath.Join(t.TempDir(), "flat.zarr")
	if _, err := zarr.CreateGroup(path); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("Open(store without data/) should fail")
	}

	buf, err := Open(writeStore(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := buf.Float32s("camera_1"); err == nil {
		t.Error("Float32s on a 4-D array should fail")
	}
	if _, err := buf.Images("robot_eef_pos"); err == nil {
		t.Error("Images on a 2-D array should fail")
	}
	if _, err := buf.Float32s("action"); !errors.Is(err, zarr.ErrNotFound) {
		t.Errorf("Float32s(missing) error = %v, want ErrNotFound", err)
	}
}

func TestAttrs(t *testing.T) {
	path := writeStore(t)
	buf, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if attrs := buf.Attrs(); attrs != nil {
		t.Errorf("Attrs() without .zattrs = %v, want nil", attrs)
	}

	if err := os.WriteFile(filepath.Join(path, ".zattrs"), []byte(`{"env": "scara-push-v0", "fps": 10}`), 0o644); err != nil {
		t.Fatal(err)
	}
	buf, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	attrs := buf.Attrs()
	if attrs["env"] != "scara-push-v0" || attrs["fps"] != float64(10) {
		t.Errorf("Attrs() = %v", attrs)
	}
}

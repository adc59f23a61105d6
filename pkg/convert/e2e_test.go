package convert

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gwillem/zarr2lerobot/pkg/dataset"
	"github.com/gwillem/zarr2lerobot/pkg/features"
	"github.com/gwillem/zarr2lerobot/pkg/replay"
	"github.com/gwillem/zarr2lerobot/pkg/zarr"
)

func writeStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pusht.zarr")
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

	vec := make([]float32, 7*3)
	for i := range vec {
		vec[i] = float32(i) / 2
	}
	for _, key := range []string{DefaultStateKey, DefaultActionKey} {
		if _, err := data.WriteArray(key, zarr.NewMetadata([]int{7, 3}, []int{5, 3}, "<f4", &zarr.Compressor{ID: "zstd", Level: 3}), zarr.EncodeFloat32s(vec)); err != nil {
			t.Fatal(err)
		}
	}
	img := make([]byte, 7*2*2*1)
	for i := range img {
		img[i] = byte(i * 9)
	}
	if _, err := data.WriteArray(DefaultImageKey, zarr.NewMetadata([]int{7, 2, 2, 1}, []int{3, 2, 2, 1}, "|u1", nil), img); err != nil {
		t.Fatal(err)
	}
	if _, err := meta.WriteArray("episode_ends", zarr.NewMetadata([]int{2}, []int{2}, "<i8", nil), zarr.EncodeInt64s([]int64{3, 7})); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConvertStoreToDataset(t *testing.T) {
	buf, err := replay.Open(writeStore(t))
	if err != nil {
		t.Fatalf("replay.Open() error = %v", err)
	}
	root := filepath.Join(t.TempDir(), "out", "pusht_image")
	factory := func(fs features.Features) (Writer, error) {
		return dataset.Create(dataset.Options{
			Root:               root,
			RepoID:             "test/pusht_image",
			FPS:                dataset.DefaultFPS,
			RobotType:          "planar eef",
			Features:           fs,
			ImageWriterThreads: dataset.DefaultImageWriterThreads,
		})
	}
	c, err := New(Config{Mode: features.ModeImage}, BufferSource(buf), factory)
	if err != nil {
		t.Fatal(err)
	}
	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Root != root || summary.Episodes != 2 || summary.Frames != 7 {
		t.Errorf("summary = %+v", summary)
	}

	for _, p := range []string{
		"data/chunk-000/episode_000000.parquet",
		"data/chunk-000/episode_000001.parquet",
		"images/observation.image/episode_000001/frame_000003.png",
		dataset.InfoPath,
		dataset.StatsPath,
	} {
		if _, err := os.Stat(filepath.Join(root, p)); err != nil {
			t.Errorf("missing %s", p)
		}
	}

	f, err := os.Open(filepath.Join(root, dataset.EpisodesPath))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	lines := 0
	for sc := bufio.NewScanner(f); sc.Scan(); {
		lines++
	}
	if lines != 2 {
		t.Errorf("episodes.jsonl has %d lines, want 2", lines)
	}
	if _, err := os.Stat(filepath.Join(root, ".lock")); !os.IsNotExist(err) {
		t.Errorf("lock not released: %v", err)
	}
}

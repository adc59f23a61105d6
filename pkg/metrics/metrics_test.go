package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	m := New()
	img := m.For("image")
	vid := m.For("video")

	for i := 0; i < 7; i++ {
		img.FrameWritten()
	}
	img.EpisodeSaved()
	img.EpisodeSaved()
	vid.FrameWritten()
	vid.ConversionFailed()

	if got := testutil.ToFloat64(m.framesTotal.WithLabelValues("image")); got != 7 {
		t.Errorf("image frames = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.episodesTotal.WithLabelValues("image")); got != 2 {
		t.Errorf("image episodes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.errorsTotal.WithLabelValues("video")); got != 1 {
		t.Errorf("video errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.errorsTotal.WithLabelValues("image")); got != 0 {
		t.Errorf("image errors = %v, want 0", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.For("image").FrameWritten()
	m.ObserveDuration("image", 1500*time.Millisecond)
	m.MarkSuccess(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "lerobot_convert.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`lerobot_convert_frames_total{mode="image"} 1`,
		`lerobot_convert_duration_seconds{mode="image"} 1.5`,
		"lerobot_convert_last_success_timestamp_seconds 1.7e+09",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}

	n, err := testutil.GatherAndCount(m.Registry(), "lerobot_convert_frames_total", "lerobot_convert_episodes_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("gathered series = %d, want 1", n)
	}
}

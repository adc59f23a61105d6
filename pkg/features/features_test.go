package features

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestBuildImageAndVideo(t *testing.T) {
	for _, mode := range []Mode{ModeImage, ModeVideo} {
		fs, err := Build(mode)
		if err != nil {
			t.Fatalf("Build(%s): %v", mode, err)
		}
		want := []string{KeyState, KeyAction, KeyImage}
		if !slices.Equal(fs.Keys(), want) {
			t.Errorf("Build(%s).Keys() = %v, want %v", mode, fs.Keys(), want)
		}
		img, _ := fs.Get(KeyImage)
		if img.DType != DType(mode) {
			t.Errorf("Build(%s) image dtype = %q, want %q", mode, img.DType, mode)
		}
		if !slices.Equal(img.Shape, []int{240, 320, 3}) {
			t.Errorf("Build(%s) image shape = %v", mode, img.Shape)
		}
		if !slices.Equal(img.Names, []string{"height", "width", "channel"}) {
			t.Errorf("Build(%s) image names = %v", mode, img.Names)
		}
	}
}

func TestBuildIsIndependentAcrossCalls(t *testing.T) {
	kp, err := Build(ModeKeypoints)
	if err != nil {
		t.Fatal(err)
	}
	if kp.Has(KeyImage) {
		t.Error("keypoints schema should not contain the image feature")
	}

	img, err := Build(ModeImage)
	if err != nil {
		t.Fatal(err)
	}
	vid, err := Build(ModeVideo)
	if err != nil {
		t.Fatal(err)
	}

	if f, ok := img.Get(KeyImage); !ok || f.DType != Image {
		t.Errorf("image schema after keypoints: %+v, %v", f, ok)
	}
	if f, _ := vid.Get(KeyImage); f.DType != Video {
		t.Errorf("video schema dtype = %q", f.DType)
	}
	if f, _ := img.Get(KeyImage); f.DType != Image {
		t.Errorf("building video changed the image schema to %q", f.DType)
	}

	if f, _ := Base().Get(KeyImage); f.DType != Pending {
		t.Errorf("Base() image dtype = %q, want pending", f.DType)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	fs := Base()
	f, _ := fs.Get(KeyState)
	f.Shape[0] = 99
	f.Names[0] = "q"
	if g, _ := fs.Get(KeyState); g.Shape[0] != 3 || g.Names[0] != "x" {
		t.Errorf("Get exposed internal state: %+v", g)
	}
}

func TestBuildUnsupported(t *testing.T) {
	if _, err := Build(Mode("bogus")); !errors.Is(err, ErrUnsupportedMode) {
		t.Errorf("Build(bogus) error = %v, want ErrUnsupportedMode", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"image", ModeImage, false},
		{"video", ModeVideo, false},
		{"keypoints", ModeKeypoints, false},
		{"bogus", "", true},
		{"Image", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedMode) {
				t.Errorf("ParseMode(%q) error = %v, want ErrUnsupportedMode", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestMarshalJSONKeepsOrder(t *testing.T) {
	fs, err := Build(ModeImage)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(fs.WithDefaults())
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)

	order := []string{KeyState, KeyAction, KeyImage, KeyTimestamp, KeyFrameIndex, KeyEpisodeIndex, KeyIndex, KeyTaskIndex}
	last := -1
	for _, k := range order {
		idx := strings.Index(s, `"`+k+`"`)
		if idx < 0 {
			t.Fatalf("key %s missing from %s", k, s)
		}
		if idx < last {
			t.Errorf("key %s out of order in %s", k, s)
		}
		last = idx
	}

	if !strings.Contains(s, `"names":{"axes":["x","y","z"]}`) {
		t.Errorf("vector names not nested under axes: %s", s)
	}
	if !strings.Contains(s, `"timestamp":{"dtype":"float32","shape":[1],"names":null}`) {
		t.Errorf("timestamp entry malformed: %s", s)
	}
}

func TestMarshalPendingDType(t *testing.T) {
	f, _ := Base().Get(KeyImage)
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), `{"dtype":null`) {
		t.Errorf("pending dtype encoded as %s", data)
	}
}

func TestWithout(t *testing.T) {
	fs := Base()
	out := fs.Without(KeyAction)
	if out.Has(KeyAction) || out.Len() != 2 {
		t.Errorf("Without(action) = %v", out.Keys())
	}
	if !fs.Has(KeyAction) {
		t.Error("Without mutated the receiver")
	}
	if got := fs.Without("missing"); got.Len() != 3 {
		t.Errorf("Without(missing) changed length to %d", got.Len())
	}
}

func TestIsDefault(t *testing.T) {
	if !IsDefault(KeyIndex) || IsDefault(KeyAction) {
		t.Error("IsDefault misclassified keys")
	}
}

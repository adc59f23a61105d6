package features

import (
	"fmt"

	"github.com/gwillem/zarr2lerobot/pkg/robot"
)

// Frame keys.
const (
	KeyState            = "observation.state"
	KeyAction           = "action"
	KeyImage            = "observation.image"
	KeyEnvironmentState = "observation.environment_state"
	KeyTask             = "task"

	KeyTimestamp    = "timestamp"
	KeyFrameIndex   = "frame_index"
	KeyEpisodeIndex = "episode_index"
	KeyIndex        = "index"
	KeyTaskIndex    = "task_index"
)

// Default image geometry of the push-T renders.
const (
	ImageHeight   = 240
	ImageWidth    = 320
	ImageChannels = 3
)

// Base returns a fresh copy of the base schema. Callers may modify the
// result freely; every call builds a new value.
func Base() Features {
	var fs Features
	fs = fs.Set(KeyState, Feature{
		DType:    Float32,
		Shape:    []int{len(robot.AllAxes())},
		Names:    robot.AxisNames(),
		NamesKey: "axes",
	})
	fs = fs.Set(KeyAction, Feature{
		DType:    Float32,
		Shape:    []int{len(robot.AllAxes())},
		Names:    robot.AxisNames(),
		NamesKey: "axes",
	})
	fs = fs.Set(KeyImage, Feature{
		DType: Pending,
		Shape: []int{ImageHeight, ImageWidth, ImageChannels},
		Names: []string{"height", "width", "channel"},
	})
	return fs
}

// Build returns the schema for mode. Keypoints drops the image feature;
// image and video store the image with the mode as its dtype.
func Build(mode Mode) (Features, error) {
	fs := Base()
	switch mode {
	case ModeKeypoints:
		return fs.Without(KeyImage), nil
	case ModeImage, ModeVideo:
		img, _ := fs.Get(KeyImage)
		img.DType = DType(mode)
		return fs.Set(KeyImage, img), nil
	default:
		return Features{}, fmt.Errorf("build features: %w: %q", ErrUnsupportedMode, mode)
	}
}

// DefaultKeys lists the per-frame bookkeeping features every dataset carries.
func DefaultKeys() []string {
	return []string{KeyTimestamp, KeyFrameIndex, KeyEpisodeIndex, KeyIndex, KeyTaskIndex}
}

// WithDefaults returns a copy with the bookkeeping features appended.
func (fs Features) WithDefaults() Features {
	c := fs.Set(KeyTimestamp, Feature{DType: Float32, Shape: []int{1}})
	for _, k := range []string{KeyFrameIndex, KeyEpisodeIndex, KeyIndex, KeyTaskIndex} {
		c = c.Set(k, Feature{DType: Int64, Shape: []int{1}})
	}
	return c
}

// IsDefault reports whether name is a bookkeeping feature.
func IsDefault(name string) bool {
	for _, k := range DefaultKeys() {
		if k == name {
			return true
		}
	}
	return false
}

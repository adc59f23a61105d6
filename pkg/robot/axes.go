// Package robot describes the robot embodiments whose demonstrations are converted.
package robot

// AxisName identifies one component of an end-effector vector.
type AxisName string

// Axis names for a Cartesian end effector.
const (
	X AxisName = "x"
	Y AxisName = "y"
	Z AxisName = "z"
)

// PlanarEEF is the robot type label of a planar end-effector robot,
// such as the scara used for the push-T demonstrations.
const PlanarEEF = "planar eef"

// AllAxes returns all axis names in vector order.
func AllAxes() []AxisName {
	return []AxisName{
		X,
		Y,
		Z,
	}
}

// AxisNames returns AllAxes as plain strings.
func AxisNames() []string {
	axes := AllAxes()
	names := make([]string, len(axes))
	for i, a := range axes {
		names[i] = string(a)
	}
	return names
}

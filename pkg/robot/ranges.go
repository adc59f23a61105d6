package robot

import "math"

// AxisRange holds the observed value range of one axis.
type AxisRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Ranges holds ranges for all axes, keyed by axis name.
type Ranges map[AxisName]AxisRange

// Normalize converts a raw axis value to a normalized value in the range [-100, 100].
func (r AxisRange) Normalize(raw float64) float64 {
	rangeSize := r.Max - r.Min
	if rangeSize == 0 {
		return 0
	}
	return ((raw-r.Min)/rangeSize)*200 - 100
}

// RangesOf scans row-major data with one column per axis in AllAxes order.
// Columns beyond the known axes are ignored; NaNs are skipped.
func RangesOf(data []float32, cols int) Ranges {
	axes := AllAxes()
	n := min(cols, len(axes))
	ranges := make(Ranges, n)
	if cols <= 0 {
		return ranges
	}

	for c := 0; c < n; c++ {
		r := AxisRange{Min: math.Inf(1), Max: math.Inf(-1)}
		for i := c; i < len(data); i += cols {
			v := float64(data[i])
			if math.IsNaN(v) {
				continue
			}
			r.Min = math.Min(r.Min, v)
			r.Max = math.Max(r.Max, v)
		}
		if math.IsInf(r.Min, 1) {
			r = AxisRange{}
		}
		ranges[axes[c]] = r
	}
	return ranges
}

// Normalize maps one row of axis values into [-100, 100] per axis.
func (r Ranges) Normalize(row []float32) map[AxisName]float64 {
	out := make(map[AxisName]float64, len(r))
	// Use AllAxes() to ensure consistent ordering
	for i, name := range AllAxes() {
		ar, ok := r[name]
		if !ok || i >= len(row) {
			continue
		}
		out[name] = ar.Normalize(float64(row[i]))
	}
	return out
}

package dataset

import (
	"math"
)

// runningStats accumulates per-element mean, std, min and max.
type runningStats struct {
	count int64
	sum   []float64
	sumSq []float64
	min   []float64
	max   []float64
}

func newRunningStats(n int) *runningStats {
	s := &runningStats{
		sum:   make([]float64, n),
		sumSq: make([]float64, n),
		min:   make([]float64, n),
		max:   make([]float64, n),
	}
	for i := range s.min {
		s.min[i] = math.Inf(1)
		s.max[i] = math.Inf(-1)
	}
	return s
}

func (s *runningStats) add(i int, v float64) {
	s.sum[i] += v
	s.sumSq[i] += v * v
	s.min[i] = math.Min(s.min[i], v)
	s.max[i] = math.Max(s.max[i], v)
}

func (s *runningStats) addVector(values []float32) {
	for i, v := range values {
		s.add(i, float64(v))
	}
	s.count++
}

func (s *runningStats) addScalar(v float64) {
	s.add(0, v)
	s.count++
}

// addImage accumulates per-channel statistics of pixel values scaled to [0, 1].
// count is kept in pixels so mean and std are per pixel.
func (s *runningStats) addImage(pix []uint8, channels int) {
	n := len(pix) / channels
	for c := 0; c < channels; c++ {
		var sum, sumSq float64
		lo, hi := 255, 0
		for i := c; i < len(pix); i += channels {
			v := int(pix[i])
			sum += float64(v)
			sumSq += float64(v * v)
			lo = min(lo, v)
			hi = max(hi, v)
		}
		s.sum[c] += sum / 255
		s.sumSq[c] += sumSq / (255 * 255)
		s.min[c] = math.Min(s.min[c], float64(lo)/255)
		s.max[c] = math.Max(s.max[c], float64(hi)/255)
	}
	s.count += int64(n)
}

// featureStats is one stats.json entry.
type featureStats struct {
	Mean any `json:"mean"`
	Std  any `json:"std"`
	Min  any `json:"min"`
	Max  any `json:"max"`
}

func (s *runningStats) result(image bool) featureStats {
	n := len(s.sum)
	mean := make([]float64, n)
	std := make([]float64, n)
	lo := make([]float64, n)
	hi := make([]float64, n)
	if s.count > 0 {
		count := float64(s.count)
		for i := 0; i < n; i++ {
			mean[i] = s.sum[i] / count
			variance := s.sumSq[i]/count - mean[i]*mean[i]
			std[i] = math.Sqrt(math.Max(variance, 0))
			lo[i] = s.min[i]
			hi[i] = s.max[i]
		}
	}
	if !image {
		return featureStats{Mean: mean, Std: std, Min: lo, Max: hi}
	}
	return featureStats{Mean: perChannel(mean), Std: perChannel(std), Min: perChannel(lo), Max: perChannel(hi)}
}

// perChannel shapes channel values as (c, 1, 1) so they broadcast over
// channel-first image tensors.
func perChannel(values []float64) [][][]float64 {
	out := make([][][]float64, len(values))
	for i, v := range values {
		out[i] = [][]float64{{v}}
	}
	return out
}

// Package episode turns episode end offsets into frame index ranges.
package episode

import (
	"errors"
	"fmt"
)

// ErrMalformedBoundary is returned for empty or non-increasing episode ends.
var ErrMalformedBoundary = errors.New("malformed episode boundary")

// Range is the half-open global frame range [From, To) of one episode.
type Range struct {
	From int64
	To   int64
}

// Len returns the number of frames in the range.
func (r Range) Len() int64 {
	return r.To - r.From
}

// Segment pairs each episode end with the previous one: to is ends
// unchanged, from is 0 followed by ends without its last element.
func Segment(ends []int64) (from, to []int64, err error) {
	if len(ends) == 0 {
		return nil, nil, fmt.Errorf("%w: no episodes", ErrMalformedBoundary)
	}
	var prev int64
	for i, end := range ends {
		if end <= prev {
			return nil, nil, fmt.Errorf("%w: episode %d ends at %d after %d", ErrMalformedBoundary, i, end, prev)
		}
		prev = end
	}

	to = append([]int64(nil), ends...)
	from = make([]int64, len(ends))
	copy(from[1:], ends[:len(ends)-1])
	return from, to, nil
}

// Ranges is Segment returning paired ranges.
func Ranges(ends []int64) ([]Range, error) {
	from, to, err := Segment(ends)
	if err != nil {
		return nil, err
	}
	ranges := make([]Range, len(from))
	for i := range from {
		ranges[i] = Range{From: from[i], To: to[i]}
	}
	return ranges, nil
}

// Total returns the frame count covered by ranges.
func Total(ranges []Range) int64 {
	if len(ranges) == 0 {
		return 0
	}
	return ranges[len(ranges)-1].To
}

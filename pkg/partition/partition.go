// Package partition splits an inclusive integer interval into contiguous slices.
package partition

import (
	"errors"
	"fmt"
)

// ErrInvalidRange indicates a split request with start > end or parts <= 0.
var ErrInvalidRange = errors.New("invalid range")

// Range is an inclusive integer interval [Start, End].
//
// A Range with End < Start is empty. Split produces empty ranges only when
// asked for more parts than the interval has elements.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Len returns the number of integers in the range.
func (r Range) Len() int64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Empty reports whether the range holds no integers.
func (r Range) Empty() bool {
	return r.End < r.Start
}

// Contains reports whether n lies inside the range.
func (r Range) Contains(n int64) bool {
	return n >= r.Start && n <= r.End
}

func (r Range) String() string {
	if r.Empty() {
		return fmt.Sprintf("[%d, empty)", r.Start)
	}
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}

// Split divides [start, end] into exactly parts contiguous ranges.
//
// With total = end-start+1, the first total%parts ranges hold one element
// more than the rest. Ranges are ordered, gap-free and non-overlapping, and
// their union is exactly [start, end].
//
// When parts exceeds total, the trailing parts-total ranges are empty. Each
// empty range sits at the position where the next element would start, so
// the layout stays contiguous.
func Split(start, end int64, parts int) ([]Range, error) {
	if start > end {
		return nil, fmt.Errorf("%w: start %d is greater than end %d", ErrInvalidRange, start, end)
	}
	if parts <= 0 {
		return nil, fmt.Errorf("%w: parts must be greater than 0, got %d", ErrInvalidRange, parts)
	}

	total := uint64(end-start) + 1
	base := total / uint64(parts)
	rem := total % uint64(parts)

	out := make([]Range, 0, parts)
	current := start
	for i := 0; i < parts; i++ {
		size := base
		if uint64(i) < rem {
			size++
		}
		r := Range{Start: current, End: current + int64(size) - 1}
		out = append(out, r)
		current = r.End + 1
	}
	return out, nil
}

// NonEmpty filters out empty ranges, keeping order.
func NonEmpty(ranges []Range) []Range {
	out := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if !r.Empty() {
			out = append(out, r)
		}
	}
	return out
}

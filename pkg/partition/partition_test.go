package partition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Scenarios(t *testing.T) {
	tests := []struct {
		name  string
		start int64
		end   int64
		parts int
		want  []Range
	}{
		{
			name:  "even split",
			start: 0, end: 9, parts: 2,
			want: []Range{{0, 4}, {5, 9}},
		},
		{
			name:  "remainder goes to earliest slice",
			start: 0, end: 3, parts: 3,
			want: []Range{{0, 1}, {2, 2}, {3, 3}},
		},
		{
			name:  "single part",
			start: 500, end: 599, parts: 1,
			want: []Range{{500, 599}},
		},
		{
			name:  "single element",
			start: 7, end: 7, parts: 1,
			want: []Range{{7, 7}},
		},
		{
			name:  "negative bounds",
			start: -5, end: 4, parts: 3,
			want: []Range{{-5, -2}, {-1, 1}, {2, 4}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.start, tt.end, tt.parts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplit_MorePartsThanElements(t *testing.T) {
	got, err := Split(0, 1, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, Range{0, 0}, got[0])
	assert.Equal(t, Range{1, 1}, got[1])
	assert.True(t, got[2].Empty())
	assert.True(t, got[3].Empty())
	assert.Equal(t, int64(0), got[3].Len())

	assert.Equal(t, []Range{{0, 0}, {1, 1}}, NonEmpty(got))
}

func TestSplit_InvalidRange(t *testing.T) {
	tests := []struct {
		name  string
		start int64
		end   int64
		parts int
	}{
		{"start after end", 10, 9, 2},
		{"zero parts", 0, 9, 0},
		{"negative parts", 0, 9, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.start, tt.end, tt.parts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRange))
			assert.Nil(t, got)
		})
	}
}

func TestSplit_Properties(t *testing.T) {
	for _, bounds := range [][2]int64{{0, 0}, {0, 9}, {3, 100}, {500000000, 500001234}, {-50, 50}} {
		for parts := 1; parts <= 17; parts++ {
			start, end := bounds[0], bounds[1]
			got, err := Split(start, end, parts)
			require.NoError(t, err)
			require.Len(t, got, parts)

			var sum int64
			minLen, maxLen := got[0].Len(), got[0].Len()
			next := start
			for _, r := range got {
				assert.Equal(t, next, r.Start, "slices must be contiguous (start=%d end=%d parts=%d)", start, end, parts)
				next = r.End + 1
				sum += r.Len()
				if r.Len() < minLen {
					minLen = r.Len()
				}
				if r.Len() > maxLen {
					maxLen = r.Len()
				}
			}
			assert.Equal(t, end-start+1, sum)
			assert.Equal(t, end+1, next)
			assert.LessOrEqual(t, maxLen-minLen, int64(1))
		}
	}
}

func TestRange_Helpers(t *testing.T) {
	r := Range{Start: 5, End: 9}
	assert.Equal(t, int64(5), r.Len())
	assert.True(t, r.Contains(5))
	assert.True(t, r.Contains(9))
	assert.False(t, r.Contains(10))
	assert.Equal(t, "[5, 9]", r.String())
	assert.Equal(t, "[3, empty)", Range{Start: 3, End: 2}.String())
}

package keyspace

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Digits encodes integers as zero-padded decimal strings with a fixed prefix.
//
// With Prefix "05" and Width 8, 1234 encodes to "0500001234".
type Digits struct {
	Prefix string
	Width  int
	Min    int64
	Max    int64
}

// NewDigits validates and returns a Digits encoder.
func NewDigits(prefix string, width int, min, max int64) (*Digits, error) {
	if width <= 0 || width > 18 {
		return nil, fmt.Errorf("digits width must be in [1, 18], got %d", width)
	}
	if min < 0 || min > max {
		return nil, fmt.Errorf("digits bounds must satisfy 0 <= min <= max, got [%d, %d]", min, max)
	}
	limit := int64(math.Pow10(width)) - 1
	if max > limit {
		return nil, fmt.Errorf("digits max %d does not fit in width %d", max, width)
	}
	return &Digits{Prefix: prefix, Width: width, Min: min, Max: max}, nil
}

func (d *Digits) MinValue() int64 { return d.Min }
func (d *Digits) MaxValue() int64 { return d.Max }

func (d *Digits) Encode(n int64) string {
	s := strconv.FormatInt(n, 10)
	if pad := d.Width - len(s); pad > 0 {
		s = strings.Repeat("0", pad) + s
	}
	return d.Prefix + s
}

// Alphabet enumerates every string over a character set whose length lies
// in [MinLength, MaxLength], shortest strings first and, within one
// length, in alphabet order.
type Alphabet struct {
	chars     []rune
	minLength int
	maxLength int
	// offsets[i] is the index of the first candidate of length minLength+i.
	offsets []int64
	total   int64
}

// ErrKeyspaceTooLarge indicates an alphabet keyspace that does not fit in int64.
var ErrKeyspaceTooLarge = errors.New("keyspace too large")

// NewAlphabet builds an Alphabet encoder.
func NewAlphabet(chars string, minLength, maxLength int) (*Alphabet, error) {
	runes := []rune(chars)
	if len(runes) < 2 {
		return nil, fmt.Errorf("alphabet needs at least 2 characters, got %d", len(runes))
	}
	seen := make(map[rune]struct{}, len(runes))
	for _, r := range runes {
		if _, dup := seen[r]; dup {
			return nil, fmt.Errorf("alphabet has duplicate character %q", r)
		}
		seen[r] = struct{}{}
	}
	if minLength < 1 || minLength > maxLength {
		return nil, fmt.Errorf("alphabet lengths must satisfy 1 <= min <= max, got [%d, %d]", minLength, maxLength)
	}

	base := int64(len(runes))
	a := &Alphabet{chars: runes, minLength: minLength, maxLength: maxLength}
	var total int64
	for l := minLength; l <= maxLength; l++ {
		count, ok := pow(base, l)
		if !ok || total > math.MaxInt64-count {
			return nil, fmt.Errorf("%w: %d characters up to length %d", ErrKeyspaceTooLarge, base, maxLength)
		}
		a.offsets = append(a.offsets, total)
		total += count
	}
	a.total = total
	return a, nil
}

func (a *Alphabet) MinValue() int64 { return 0 }
func (a *Alphabet) MaxValue() int64 { return a.total - 1 }

func (a *Alphabet) Encode(n int64) string {
	idx := len(a.offsets) - 1
	for i := 1; i < len(a.offsets); i++ {
		if n < a.offsets[i] {
			idx = i - 1
			break
		}
	}
	length := a.minLength + idx
	num := n - a.offsets[idx]

	base := int64(len(a.chars))
	out := make([]rune, length)
	for j := length - 1; j >= 0; j-- {
		out[j] = a.chars[num%base]
		num /= base
	}
	return string(out)
}

func pow(base int64, exp int) (int64, bool) {
	result := int64(1)
	for i := 0; i < exp; i++ {
		if result > math.MaxInt64/base {
			return 0, false
		}
		result *= base
	}
	return result, true
}

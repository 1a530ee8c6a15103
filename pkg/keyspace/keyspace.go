// Package keyspace maps an integer domain onto candidate strings.
//
// An Encoder is a bijection between [MinValue, MaxValue] and a set of
// candidate strings. The scheduler only works with integers; workers turn
// each integer into a candidate with Encode before hashing it.
package keyspace

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/3leaps/gocrack/pkg/partition"
)

// Encoder is the keyspace contract consumed by the partitioner and workers.
//
// Encode must be total, deterministic and injective over
// [MinValue(), MaxValue()]. Behaviour outside the domain is unspecified.
type Encoder interface {
	MinValue() int64
	MaxValue() int64
	Encode(n int64) string
}

// ErrUnknownKeyspace indicates a lookup for a keyspace name that is not registered.
var ErrUnknownKeyspace = errors.New("unknown keyspace")

// Domain returns the encoder's integer domain as a range.
func Domain(e Encoder) partition.Range {
	return partition.Range{Start: e.MinValue(), End: e.MaxValue()}
}

// Size returns the number of candidates the encoder produces.
func Size(e Encoder) int64 {
	return Domain(e).Len()
}

// Named keyspaces available without a definition file.
const (
	NameIsraeliPhone = "israel_phone"
	NameExample      = "example"
	NameLowerAlnum   = "lower_alnum"
)

var builtins = map[string]func() Encoder{
	NameIsraeliPhone: func() Encoder { return IsraeliPhone{} },
	NameExample:      func() Encoder { return Example{} },
	NameLowerAlnum: func() Encoder {
		a, _ := NewAlphabet("abcdefghijklmnopqrstuvwxyz0123456789", 1, 4)
		return a
	},
}

// Lookup returns the built-in keyspace registered under name.
func Lookup(name string) (Encoder, error) {
	ctor, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownKeyspace, name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names lists the built-in keyspace names in sorted order.
func Names() []string {
	out := make([]string, 0, len(builtins))
	for name := range builtins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsraeliPhone covers Israeli mobile numbers "05X-XXXXXXX".
//
// The domain is [500000000, 599999999]; 500000000 encodes to "050-0000000"
// and 599999999 to "059-9999999".
type IsraeliPhone struct{}

func (IsraeliPhone) MinValue() int64 { return 500_000_000 }
func (IsraeliPhone) MaxValue() int64 { return 599_999_999 }

func (IsraeliPhone) Encode(n int64) string {
	s := fmt.Sprintf("%09d", n)
	return "05" + s[1:2] + "-" + s[2:]
}

// Example is a ten-element keyspace used for demos and tests.
type Example struct{}

func (Example) MinValue() int64 { return 0 }
func (Example) MaxValue() int64 { return 9 }

func (Example) Encode(n int64) string {
	return fmt.Sprintf("EX-%d", n)
}

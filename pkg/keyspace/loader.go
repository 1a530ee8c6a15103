package keyspace

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition describes a keyspace in a YAML file.
//
// Example:
//
//	kind: digits
//	prefix: "05"
//	width: 8
//	min: 0
//	max: 99999999
//
// or:
//
//	kind: alphabet
//	alphabet: abcdefghijklmnopqrstuvwxyz
//	min_length: 1
//	max_length: 5
type Definition struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Prefix    string `yaml:"prefix"`
	Width     int    `yaml:"width"`
	Min       int64  `yaml:"min"`
	Max       int64  `yaml:"max"`
	Alphabet  string `yaml:"alphabet"`
	MinLength int    `yaml:"min_length"`
	MaxLength int    `yaml:"max_length"`
}

// Definition kinds.
const (
	KindDigits   = "digits"
	KindAlphabet = "alphabet"
	KindBuiltin  = "builtin"
)

// LoadFile reads a keyspace definition from a YAML file and builds its encoder.
func LoadFile(path string) (Encoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("keyspace file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read keyspace file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses a YAML keyspace definition and builds its encoder.
func LoadBytes(data []byte) (Encoder, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("keyspace definition is empty")
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("invalid YAML in keyspace definition: %w", err)
	}
	return def.Build()
}

// Build constructs the encoder described by the definition.
func (d Definition) Build() (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(d.Kind)) {
	case KindDigits:
		return NewDigits(d.Prefix, d.Width, d.Min, d.Max)
	case KindAlphabet:
		return NewAlphabet(d.Alphabet, d.MinLength, d.MaxLength)
	case KindBuiltin, "":
		if d.Name == "" {
			return nil, errors.New("keyspace definition needs a kind or a builtin name")
		}
		return Lookup(d.Name)
	default:
		return nil, fmt.Errorf("unsupported keyspace kind %q (supported: %s, %s, %s)", d.Kind, KindDigits, KindAlphabet, KindBuiltin)
	}
}

// Resolve returns the encoder from file when set, otherwise the named builtin.
func Resolve(name, file string) (Encoder, error) {
	if strings.TrimSpace(file) != "" {
		return LoadFile(file)
	}
	return Lookup(name)
}

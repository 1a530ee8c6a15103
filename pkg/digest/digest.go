// Package digest provides the hash functions candidates are checked against.
package digest

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
)

// Algorithm names.
const (
	MD5    = "md5"
	SHA1   = "sha1"
	SHA256 = "sha256"
)

// ErrUnsupportedAlgorithm indicates an algorithm name that is not known.
var ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")

// ErrMalformedDigest indicates a target digest that is not valid hex of the right length.
var ErrMalformedDigest = errors.New("malformed digest")

// Algorithm hashes candidates and compares them against a target digest.
type Algorithm struct {
	name string
	size int
	new  func() hash.Hash
}

// Lookup returns the algorithm registered under name.
func Lookup(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case MD5, "":
		return Algorithm{name: MD5, size: md5.Size, new: md5.New}, nil
	case SHA1:
		return Algorithm{name: SHA1, size: sha1.Size, new: sha1.New}, nil
	case SHA256:
		return Algorithm{name: SHA256, size: sha256.Size, new: sha256.New}, nil
	default:
		return Algorithm{}, fmt.Errorf("%w: %q (supported: %s, %s, %s)", ErrUnsupportedAlgorithm, name, MD5, SHA1, SHA256)
	}
}

// Name returns the algorithm name.
func (a Algorithm) Name() string { return a.name }

// HexLen returns the length of a hex-encoded digest.
func (a Algorithm) HexLen() int { return a.size * 2 }

// Sum returns the lowercase hex digest of candidate.
func (a Algorithm) Sum(candidate string) string {
	h := a.new()
	_, _ = h.Write([]byte(candidate))
	return hex.EncodeToString(h.Sum(nil))
}

// Normalize validates a target digest and returns it in lowercase.
func (a Algorithm) Normalize(target string) (string, error) {
	target = strings.ToLower(strings.TrimSpace(target))
	if len(target) != a.HexLen() {
		return "", fmt.Errorf("%w: %s digest must be %d hex characters, got %d", ErrMalformedDigest, a.name, a.HexLen(), len(target))
	}
	if _, err := hex.DecodeString(target); err != nil {
		return "", fmt.Errorf("%w: %q is not hex", ErrMalformedDigest, target)
	}
	return target, nil
}

// Matcher compares candidates against one decoded target digest.
//
// Matcher reuses its hash state and is not safe for concurrent use.
type Matcher struct {
	h      hash.Hash
	target []byte
	buf    []byte
}

// NewMatcher returns a Matcher for target, which must be a valid hex digest.
func (a Algorithm) NewMatcher(target string) (*Matcher, error) {
	norm, err := a.Normalize(target)
	if err != nil {
		return nil, err
	}
	raw, _ := hex.DecodeString(norm)
	return &Matcher{h: a.new(), target: raw, buf: make([]byte, 0, a.size)}, nil
}

// Match reports whether candidate hashes to the target digest exactly.
func (m *Matcher) Match(candidate string) bool {
	m.h.Reset()
	_, _ = m.h.Write([]byte(candidate))
	m.buf = m.h.Sum(m.buf[:0])
	return bytes.Equal(m.buf, m.target)
}

package digest

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		hexLen  int
		wantErr bool
	}{
		{name: "", want: MD5, hexLen: 32},
		{name: "MD5", want: MD5, hexLen: 32},
		{name: "sha1", want: SHA1, hexLen: 40},
		{name: "sha256", want: SHA256, hexLen: 64},
		{name: "crc32", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Lookup(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnsupportedAlgorithm))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Name())
			assert.Equal(t, tt.hexLen, a.HexLen())
		})
	}
}

func TestSum(t *testing.T) {
	md5Algo, _ := Lookup(MD5)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", md5Algo.Sum(""))
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", md5Algo.Sum("abc"))

	sha1Algo, _ := Lookup(SHA1)
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", sha1Algo.Sum("abc"))
}

func TestNormalize(t *testing.T) {
	a, _ := Lookup(MD5)

	got, err := a.Normalize("  900150983CD24FB0D6963F7D28E17F72 ")
	require.NoError(t, err)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", got)

	_, err = a.Normalize("abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedDigest))

	_, err = a.Normalize("zz0150983cd24fb0d6963f7d28e17f72")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedDigest))
}

func TestMatcher(t *testing.T) {
	a, _ := Lookup(MD5)
	m, err := a.NewMatcher(a.Sum("050-1234567"))
	require.NoError(t, err)

	assert.True(t, m.Match("050-1234567"))
	assert.False(t, m.Match("050-1234568"))
	assert.True(t, m.Match("050-1234567"), "matcher must be reusable")
	assert.False(t, m.Match(""))

	upper, err := a.NewMatcher(strings.ToUpper(a.Sum("")))
	require.NoError(t, err)
	assert.True(t, upper.Match(""))
	assert.False(t, upper.Match("050-1234567"))

	sha, _ := Lookup(SHA256)
	wide, err := sha.NewMatcher(sha.Sum("050-1234567"))
	require.NoError(t, err)
	assert.True(t, wide.Match("050-1234567"))
	assert.False(t, wide.Match("050-1234568"))

	_, err = a.NewMatcher("not-a-digest")
	require.Error(t, err)
}

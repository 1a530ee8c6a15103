// Package hashsource opens hash lists for submission.
//
// A source is one of:
//   - "-" for standard input
//   - a local file path
//   - a doublestar glob of local files, e.g. "hashes/**/*.txt"
//   - an object URI, "s3://bucket/key"
//
// Glob matches are read in lexical order and joined with a newline so a
// file without a trailing newline does not merge its last line with the
// next file's first line.
package hashsource

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SchemeS3 prefixes object store sources.
const SchemeS3 = "s3://"

// Option configures Open.
type Option func(*options)

type options struct {
	stdin  io.Reader
	s3     S3Config
	getter ObjectGetter
}

// WithStdin replaces os.Stdin as the reader for "-".
func WithStdin(r io.Reader) Option {
	return func(o *options) { o.stdin = r }
}

// WithS3Config sets region, endpoint and credentials for s3:// sources.
func WithS3Config(cfg S3Config) Option {
	return func(o *options) { o.s3 = cfg }
}

// WithObjectGetter supplies the client used for s3:// sources instead of
// building one from the AWS default chain.
func WithObjectGetter(g ObjectGetter) Option {
	return func(o *options) { o.getter = g }
}

// Open returns a reader over the hash lines of uri. The caller closes it.
func Open(ctx context.Context, uri string, opts ...Option) (io.ReadCloser, error) {
	o := options{stdin: os.Stdin}
	for _, opt := range opts {
		opt(&o)
	}

	uri = strings.TrimSpace(uri)
	switch {
	case uri == "":
		return nil, &SourceError{Op: "Open", URI: uri, Err: ErrInvalidURI}
	case uri == "-":
		return io.NopCloser(o.stdin), nil
	case strings.HasPrefix(uri, SchemeS3):
		return openObject(ctx, uri, o)
	case IsGlob(uri):
		return openGlob(uri)
	default:
		return openFile(uri)
	}
}

// Name returns a display name for uri, the last path element for files and
// objects.
func Name(uri string) string {
	if uri == "-" {
		return "stdin"
	}
	trimmed := strings.TrimPrefix(uri, SchemeS3)
	if i := strings.LastIndexAny(trimmed, `/\`); i >= 0 && i < len(trimmed)-1 {
		return trimmed[i+1:]
	}
	return trimmed
}

// IsGlob reports whether uri contains glob metacharacters.
func IsGlob(uri string) bool {
	return strings.ContainsAny(uri, "*?[{")
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceError{Op: "Open", URI: path, Err: mapFSError(err)}
	}
	return f, nil
}

func openGlob(pattern string) (io.ReadCloser, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, &SourceError{Op: "Glob", URI: pattern, Err: ErrInvalidURI}
	}
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, &SourceError{Op: "Glob", URI: pattern, Err: err}
	}
	if len(matches) == 0 {
		return nil, &SourceError{Op: "Glob", URI: pattern, Err: ErrNotFound}
	}
	sort.Strings(matches)

	files := make([]*os.File, 0, len(matches))
	readers := make([]io.Reader, 0, 2*len(matches))
	for i, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			for _, opened := range files {
				_ = opened.Close()
			}
			return nil, &SourceError{Op: "Open", URI: path, Err: mapFSError(err)}
		}
		files = append(files, f)
		if i > 0 {
			readers = append(readers, strings.NewReader("\n"))
		}
		readers = append(readers, f)
	}
	return &multiFile{Reader: io.MultiReader(readers...), files: files}, nil
}

type multiFile struct {
	io.Reader
	files []*os.File
}

func (m *multiFile) Close() error {
	var errs []error
	for _, f := range m.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func mapFSError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrAccessDenied
	default:
		return err
	}
}

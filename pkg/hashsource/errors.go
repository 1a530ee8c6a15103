package hashsource

import (
	"errors"
	"fmt"
)

// Sentinel errors for source operations.
var (
	// ErrInvalidURI indicates a source string that cannot be parsed.
	ErrInvalidURI = errors.New("invalid source uri")

	// ErrNotFound indicates the file, object or glob matched nothing.
	ErrNotFound = errors.New("source not found")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnavailable indicates the object store is unavailable.
	ErrUnavailable = errors.New("object store unavailable")

	// ErrThrottled indicates the request was rate limited by the object store.
	ErrThrottled = errors.New("request throttled")
)

// SourceError wraps a failed read with the source it came from.
type SourceError struct {
	Op  string
	URI string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URI, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

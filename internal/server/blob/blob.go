// Package blob stores the bytes of uploaded files under their stored name.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound returned when no object exists under the requested name
var ErrNotFound = errors.New("blob not found")

// Store defines the interface for storing file content
type Store interface {
	// Put writes size bytes from r under name
	Put(ctx context.Context, name string, r io.Reader, size int64) error
	// Open returns a reader for the object. Callers must close it.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrObjectNotFound is returned when a stored path does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ErrObjectTooLarge is returned by ReadAll when an object exceeds the size limit.
var ErrObjectTooLarge = errors.New("object exceeds size limit")

// BlobStore defines the read side of object storage used by the import pipeline
type BlobStore interface {
	// Download opens an object for reading
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// Ping checks that the backing store is reachable
	Ping(ctx context.Context) error
}

// ReadAll downloads key fully. A positive limit caps the number of bytes accepted.
// Parameters:
//   - ctx: cancellation for the download.
//   - store: blob store to read from.
//   - key: stored path of the object.
//   - limit: maximum object size in bytes; zero or negative disables the check.
// Returns:
//   - []byte: object contents.
//   - error: ErrObjectNotFound, ErrObjectTooLarge or a transport error.
func ReadAll(ctx context.Context, store BlobStore, key string, limit int64) ([]byte, error) {
	body, err := store.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var r io.Reader = body
	if limit > 0 {
		r = io.LimitReader(body, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrObjectTooLarge, key, limit)
	}
	return data, nil
}

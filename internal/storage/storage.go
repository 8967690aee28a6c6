// Package storage abstracts the object store that export artifacts are
// written to. The local filesystem implementation treats the bucket as a
// directory under a configured base directory.
package storage

import (
	"context"
	"io"
)

// Connection is one object store connection.
type Connection interface {
	// Upload writes data to bucket/objectName, overwriting any existing
	// object.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error

	// Download opens bucket/objectName for reading. The caller closes the
	// returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)

	// ListObjects calls fn for every object under bucket whose name starts
	// with prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error

	// DeleteObject removes bucket/objectName. Deleting a missing object is
	// not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error

	// Close releases the connection's resources.
	Close() error
}

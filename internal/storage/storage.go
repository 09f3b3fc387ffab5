// Package storage provides the cache directory for derived files and the
// optional S3 destination for compressed output.
package storage

import (
	"context"
	"io"
)

// Storage defines the cache and upload operations the service needs.
type Storage interface {
	// TempDir returns the cache directory.
	TempDir() string

	// SaveTemp writes data to a new file in the cache directory and returns
	// its path. The name is a hint; its extension is preserved.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// ClearTemp removes everything in the cache directory and returns the
	// number of entries removed. The directory itself is kept.
	ClearTemp(ctx context.Context) (removed int, err error)

	// UploadToS3 uploads data to S3 and returns its URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}

package ports

import (
	"context"
	"io"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
	// SourcePath, when set, is the local file Reader was opened from.
	// Providers on the same filesystem may move it instead of copying.
	SourcePath string
}

type PutObjectOutput struct {
	// localfs returns the same key; gdrive returns the Drive file id, which
	// is what later reads must use.
	ObjectKey string
	Size      int64
}

// StorageProvider publishes rendered outputs and serves them back.
// GetObject must return an error matching fs.ErrNotExist for unknown keys.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
}

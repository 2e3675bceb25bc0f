package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"gocloud.dev/blob/fileblob"
)

// NewFileBlobStore opens a directory through the gocloud fileblob driver.
// It behaves like the cloud backends, which makes it useful for exercising
// them locally.
func NewFileBlobStore(dir, prefix string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}

	bucket, err := fileblob.OpenBucket(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open file bucket %s: %w", abs, err)
	}

	return newBlobStore(bucket, "file://"+filepath.ToSlash(abs), prefix), nil
}

package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// BlobStore keeps archives in a gocloud.dev bucket. The GCS, S3 and file
// backends all share it and differ only in how the bucket is opened.
type BlobStore struct {
	bucket    *blob.Bucket
	uriPrefix string // "gs://bucket", "s3://bucket", "file:///dir"
	prefix    string
}

func newBlobStore(bucket *blob.Bucket, uriPrefix, prefix string) *BlobStore {
	return &BlobStore{
		bucket:    bucket,
		uriPrefix: strings.TrimRight(uriPrefix, "/"),
		prefix:    prefix,
	}
}

// Put writes an archive to the bucket. Object writes are atomic on close.
func (s *BlobStore) Put(ctx context.Context, ref ArchiveRef, data []byte) error {
	path := ref.Path(s.prefix)

	w, err := s.bucket.NewWriter(ctx, path, &blob.WriterOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", path, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", path, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", path, err)
	}

	return nil
}

// Get reads an archive from the bucket.
func (s *BlobStore) Get(ctx context.Context, ref ArchiveRef) ([]byte, error) {
	path := ref.Path(s.prefix)

	data, err := s.bucket.ReadAll(ctx, path)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Exists checks if an archive is present in the bucket.
func (s *BlobStore) Exists(ctx context.Context, ref ArchiveRef) (bool, error) {
	return s.bucket.Exists(ctx, ref.Path(s.prefix))
}

// List returns all keys with the given prefix.
func (s *BlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	iter := s.bucket.List(&blob.ListOptions{
		Prefix: prefix,
	})

	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, obj.Key)
	}

	return keys, nil
}

// URI returns the canonical URI for the given key.
func (s *BlobStore) URI(key string) string {
	return s.uriPrefix + "/" + key
}

// Close releases the bucket connection.
func (s *BlobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

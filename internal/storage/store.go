package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when no archive is stored for a ref.
var ErrNotFound = errors.New("archive not found")

// keyTimeLayout is filesystem and object-key safe.
const keyTimeLayout = "20060102T150405"

// ArchiveRef identifies one fetched waveform archive.
type ArchiveRef struct {
	Network string
	Station string
	Channel string
	Start   time.Time
	End     time.Time
}

// Path returns the object key for the archive under prefix.
func (r ArchiveRef) Path(prefix string) string {
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	return fmt.Sprintf("%s%s/%s/%s/%04d/%s_%s.sac.zip",
		prefix, r.Network, r.Station, r.Channel, r.Start.UTC().Year(),
		r.Start.UTC().Format(keyTimeLayout), r.End.UTC().Format(keyTimeLayout))
}

// ArchiveStore persists raw waveform archives.
type ArchiveStore interface {
	// Put stores data for ref, replacing any previous copy.
	Put(ctx context.Context, ref ArchiveRef, data []byte) error

	// Get returns the stored bytes or ErrNotFound.
	Get(ctx context.Context, ref ArchiveRef) ([]byte, error)

	// Exists checks if an archive is stored for ref.
	Exists(ctx context.Context, ref ArchiveRef) (bool, error)

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// StorageConfig configures the storage backend.
type StorageConfig struct {
	Backend string // "local" | "file" | "gcs" | "s3"

	// Local filesystem (local and file backends)
	LocalDir string

	// GCS and S3
	Bucket string

	// S3 (also works for B2, R2, MinIO)
	Endpoint string
	Region   string

	// Common
	Prefix string // path prefix within bucket or local dir

	// Compress stores archives zstd-compressed.
	Compress bool
}

// NewArchiveStore creates a storage backend based on configuration.
func NewArchiveStore(cfg StorageConfig) (ArchiveStore, error) {
	var (
		store ArchiveStore
		err   error
	)

	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		store, err = NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "file":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for file backend")
		}
		store, err = NewFileBlobStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for gcs backend")
		}
		store, err = NewGCSStore(cfg.Bucket, cfg.Prefix)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for s3 backend")
		}
		store, err = NewS3Store(cfg.Bucket, cfg.Prefix, cfg.Endpoint, cfg.Region)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Compress {
		return NewCompressedStore(store)
	}
	return store, nil
}

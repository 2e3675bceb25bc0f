package metadata

import (
	"context"
	"time"
)

type CatalogConfig struct {
	PostgresDSN string
}

// ChunkRecord is one processed chunk of a run.
type ChunkRecord struct {
	RunID       string
	Network     string
	Station     string
	Channel     string
	WindowStart time.Time
	WindowEnd   time.Time
	Status      string
	Files       int
	FilesFailed int
	Rows        int
	Triggers    int
	Attempts    int
	Mirrored    bool
	Duration    time.Duration
	Error       string
}

// Writer records chunk outcomes in a catalog.
type Writer interface {
	RecordChunk(ctx context.Context, rec ChunkRecord) error
	Close() error
}

// NewWriter returns a PostgreSQL writer when a DSN is configured and a no-op
// writer otherwise.
func NewWriter(cfg CatalogConfig) (Writer, error) {
	if cfg.PostgresDSN == "" {
		return noopWriter{}, nil
	}
	return NewPostgresWriter(cfg)
}

type noopWriter struct{}

func (noopWriter) RecordChunk(_ context.Context, _ ChunkRecord) error { return nil }
func (noopWriter) Close() error                                      { return nil }

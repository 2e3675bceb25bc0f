package metadata

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool *pgxpool.Pool
	cfg  CatalogConfig
}

// NewPostgresWriter connects, pings and applies the schema.
func NewPostgresWriter(cfg CatalogConfig) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	w := &PostgresWriter{pool: pool, cfg: cfg}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Println("[metadata] connected to PostgreSQL catalog")
	return w, nil
}

// RecordChunk upserts a chunk outcome keyed by run and window start.
func (w *PostgresWriter) RecordChunk(ctx context.Context, rec ChunkRecord) error {
	query := `
		INSERT INTO chunk_runs (
			run_id, network, station, channel, window_start, window_end,
			status, files, files_failed, rows_written, triggers, attempts,
			mirrored, duration_ms, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (run_id, window_start) DO UPDATE SET
			status = EXCLUDED.status,
			files = EXCLUDED.files,
			files_failed = EXCLUDED.files_failed,
			rows_written = EXCLUDED.rows_written,
			triggers = EXCLUDED.triggers,
			attempts = EXCLUDED.attempts,
			mirrored = EXCLUDED.mirrored,
			duration_ms = EXCLUDED.duration_ms,
			error_message = EXCLUDED.error_message,
			recorded_at = NOW()
	`

	var errMsg *string
	if rec.Error != "" {
		errMsg = &rec.Error
	}

	_, err := w.pool.Exec(ctx, query,
		rec.RunID,
		rec.Network,
		rec.Station,
		rec.Channel,
		rec.WindowStart.UTC(),
		rec.WindowEnd.UTC(),
		rec.Status,
		rec.Files,
		rec.FilesFailed,
		rec.Rows,
		rec.Triggers,
		rec.Attempts,
		rec.Mirrored,
		rec.Duration.Milliseconds(),
		errMsg,
	)
	if err != nil {
		return fmt.Errorf("record chunk: %w", err)
	}
	return nil
}

// RecentChunks returns the latest chunk records for a station, newest first.
func (w *PostgresWriter) RecentChunks(ctx context.Context, network, station, channel string, limit int) ([]ChunkRecord, error) {
	query := `
		SELECT run_id, window_start, window_end, status, files, files_failed,
		       rows_written, triggers, attempts, mirrored, duration_ms,
		       COALESCE(error_message, '')
		FROM chunk_runs
		WHERE network = $1 AND station = $2 AND channel = $3
		ORDER BY recorded_at DESC
		LIMIT $4
	`

	rows, err := w.pool.Query(ctx, query, network, station, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}

	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ChunkRecord, error) {
		rec := ChunkRecord{Network: network, Station: station, Channel: channel}
		var durationMs int64
		err := row.Scan(
			&rec.RunID,
			&rec.WindowStart,
			&rec.WindowEnd,
			&rec.Status,
			&rec.Files,
			&rec.FilesFailed,
			&rec.Rows,
			&rec.Triggers,
			&rec.Attempts,
			&rec.Mirrored,
			&durationMs,
			&rec.Error,
		)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	return recs, nil
}

// Close releases database connections.
func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}

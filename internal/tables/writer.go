package tables

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/withObsrvr/seismic-trigger-catalog/internal/detector"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/ledger"
)

// FromLedger converts ledger rows in file order.
func FromLedger(rows []ledger.Row, cfg ParquetConfig, exportedAt time.Time) []TriggerRow {
	out := make([]TriggerRow, len(rows))
	for i, r := range rows {
		start := r.Start.UTC()
		count := r.Count
		if len(r.Triggers) > count {
			count = len(r.Triggers)
		}
		out[i] = TriggerRow{
			File:         r.File,
			Network:      cfg.Network,
			Station:      r.Station,
			Channel:      cfg.Channel,
			StartTime:    start,
			EndTime:      r.End.UTC(),
			Day:          start.Format("2006-01-02"),
			Month:        start.Format("2006-01"),
			TriggerCount: int32(count),
			TriggerTimes: detector.FormatTriggers(r.Triggers),
			ExportedAt:   exportedAt.UTC(),
		}
	}
	return out
}

func compressionOption(name string) (parquet.WriterOption, error) {
	switch name {
	case "", "snappy":
		return parquet.Compression(&parquet.Snappy), nil
	case "zstd":
		return parquet.Compression(&parquet.Zstd), nil
	case "gzip":
		return parquet.Compression(&parquet.Gzip), nil
	case "none":
		return parquet.Compression(&parquet.Uncompressed), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}
}

// WriteParquet writes rows as a single parquet file to w.
func WriteParquet(w io.Writer, rows []TriggerRow, compression string) error {
	opt, err := compressionOption(compression)
	if err != nil {
		return err
	}

	pw := parquet.NewGenericWriter[TriggerRow](w, opt)
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// ReadParquet reads every row of a parquet file produced by WriteParquet.
func ReadParquet(data []byte) ([]TriggerRow, error) {
	rows, err := parquet.Read[TriggerRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return rows, nil
}

// ExportFile writes rows to path atomically and returns the checksum of the
// written bytes.
func ExportFile(path string, rows []TriggerRow, compression string) (string, error) {
	var buf bytes.Buffer
	if err := WriteParquet(&buf, rows, compression); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("rename %s: %w", path, err)
	}

	return ComputeChecksum(buf.Bytes()), nil
}

// ComputeChecksum computes a SHA256 checksum for the given data.
func ComputeChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

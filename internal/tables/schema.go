package tables

import (
	"time"
)

// TriggerRow is one ledger row in the trigger_catalog table.
type TriggerRow struct {
	// Source file
	File    string `parquet:"sac_file"`
	Network string `parquet:"network"`
	Station string `parquet:"station"`
	Channel string `parquet:"channel"`

	// Temporal fields
	StartTime time.Time `parquet:"start_time,timestamp(microsecond)"`
	EndTime   time.Time `parquet:"end_time,timestamp(microsecond)"`
	Day       string    `parquet:"day"`   // YYYY-MM-DD of start_time
	Month     string    `parquet:"month"` // YYYY-MM of start_time

	// Detector output
	TriggerCount int32  `parquet:"trigger_count"`
	TriggerTimes string `parquet:"trigger_times"` // "[on off], [on off]" sample indices

	// Export metadata
	ExportedAt time.Time `parquet:"exported_at,timestamp(millisecond)"`
}

// TableName returns the canonical table name.
func (TriggerRow) TableName() string {
	return "trigger_catalog"
}

// ParquetConfig configures parquet output generation.
type ParquetConfig struct {
	Network     string
	Channel     string
	Compression string // "snappy" | "zstd" | "gzip" | "none"
}

// DefaultParquetConfig returns sensible defaults.
func DefaultParquetConfig() ParquetConfig {
	return ParquetConfig{
		Compression: "snappy",
	}
}

// SchemaVersion returns the version of the schema.
// Increment this when making breaking changes.
const SchemaVersion = "1.0.0"

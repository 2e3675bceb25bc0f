package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/withObsrvr/seismic-trigger-catalog/internal/ledger"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/source"
)

// Granularity is the size of one unit of work.
type Granularity string

const (
	Hour  Granularity = "hour"
	Day   Granularity = "day"
	Month Granularity = "month"
)

// ParseGranularity accepts hour, day or month.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case Hour, Day, Month:
		return g, nil
	default:
		return "", fmt.Errorf("unknown granularity %q (want hour, day or month)", s)
	}
}

// Chunk is a unit of work for one worker.
// Index follows partition order and is used for reporting only.
type Chunk struct {
	Window source.TimeWindow
	Index  int
}

// Status is the outcome of a chunk.
type Status string

const (
	// StatusSuccess means every fetch succeeded. Individual files may still
	// have failed to decode or detect.
	StatusSuccess Status = "success"

	// StatusSkipped means every day in the chunk was already in the ledger.
	StatusSkipped Status = "skipped"

	// StatusFailed means the service answered with a non-success status.
	StatusFailed Status = "failed"

	// StatusError covers network, archive, ledger and cancellation errors.
	StatusError Status = "error"
)

// ChunkResult is returned from workers to the collector.
type ChunkResult struct {
	Chunk       Chunk
	Status      Status
	Files       int
	FilesFailed int
	Rows        int
	Triggers    int
	Attempts    int
	Mirrored    bool
	Duration    time.Duration
	Err         error
}

// Fatal reports whether the result must stop the run.
func (r ChunkResult) Fatal() bool {
	return errors.Is(r.Err, ledger.ErrLedgerWrite)
}

// Stage names used in StageError and metrics.
const (
	StageFetch    = "fetch"
	StageExtract  = "extract"
	StageDecode   = "decode"
	StageValidate = "validate"
	StageDetect   = "detect"
	StageLedger   = "ledger"
)

// StageError attributes a failure to a pipeline stage and, for per-file
// stages, to a file.
type StageError struct {
	Stage  string
	Window source.TimeWindow
	File   string
	Err    error
}

func (e *StageError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.File, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Window, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// classify maps a chunk-level error to a Status.
func classify(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, source.ErrMaxRetries), errors.Is(err, source.ErrUnexpectedStatus):
		return StatusFailed
	default:
		return StatusError
	}
}

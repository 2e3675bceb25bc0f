package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/withObsrvr/seismic-trigger-catalog/internal/archive"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/detector"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/ledger"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/logging"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/metrics"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/source"
)

// processChunk runs one chunk end to end. Its staging directory is removed
// before returning, whatever the outcome.
func (p *Pipeline) processChunk(ctx context.Context, workerID int, runID string, c Chunk) ChunkResult {
	correlationID := logging.GenerateCorrelationID()
	ctx = logging.WithCorrelationID(ctx, correlationID)
	log := logging.ChunkLogger(correlationID, p.cfg.Network, p.cfg.Station, p.cfg.Channel,
		c.Window.Start, c.Window.End).With("worker_id", workerID, "run_id", runID)
	log.Info("processing chunk")

	p.trackInFlight(1)
	defer p.trackInFlight(-1)

	started := time.Now()
	res := ChunkResult{Chunk: c, Status: StatusSuccess}

	stageDir := filepath.Join(p.cfg.StagingDir, stagingName(c))
	defer func() {
		if err := os.RemoveAll(stageDir); err != nil {
			log.Warn("failed to clean staging directory", "dir", stageDir, "error", err)
		}
	}()

	if p.cfg.Granularity == Month {
		p.processMonth(ctx, log, c, stageDir, &res)
	} else {
		p.processSingle(ctx, log, c, stageDir, &res)
	}

	res.Duration = time.Since(started)
	p.recordChunk(ctx, log, runID, res)

	if res.Err != nil {
		log.Error("chunk finished with error",
			"status", res.Status,
			"error", res.Err,
			"duration_ms", res.Duration.Milliseconds(),
		)
	} else {
		log.Info("chunk finished",
			"status", res.Status,
			"files", res.Files,
			"rows", res.Rows,
			"triggers", res.Triggers,
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
	return res
}

// processSingle handles an hour or day chunk: one fetch, files processed
// from the chunk's own staging directory.
func (p *Pipeline) processSingle(ctx context.Context, log *slog.Logger, c Chunk, stageDir string, res *ChunkResult) {
	if p.alreadyProcessed(log, c.Window) {
		res.Status = StatusSkipped
		return
	}

	paths, err := p.fetchAndExtract(ctx, log, c.Window, stageDir, res)
	if err != nil {
		res.Status, res.Err = classify(err), err
		return
	}

	idx := &source.WaveformIndex{}
	for _, path := range paths {
		if source.IsSACFile(path) {
			idx.AddFile(path)
		}
	}
	idx.Sort()

	if err := p.processFiles(log, c.Window, idx, res); err != nil {
		res.Status, res.Err = StatusError, err
	}
}

// processMonth fetches every unprocessed day of the month into one shared
// staging directory, then processes all staged files together. A failed day
// is logged and does not stop the remaining days.
func (p *Pipeline) processMonth(ctx context.Context, log *slog.Logger, c Chunk, stageDir string, res *ChunkResult) {
	if err := os.RemoveAll(stageDir); err != nil {
		res.Status, res.Err = StatusError, fmt.Errorf("reset staging directory: %w", err)
		return
	}

	days := DayWindows(c.Window)
	var fetched, skipped int
	var firstErr error
	for _, w := range days {
		if ctx.Err() != nil {
			firstErr = ctx.Err()
			break
		}
		if p.alreadyProcessed(log, w) {
			skipped++
			continue
		}
		if _, err := p.fetchAndExtract(ctx, log, w, stageDir, res); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fetched++
	}

	if skipped == len(days) {
		res.Status = StatusSkipped
		return
	}

	if fetched > 0 {
		idx, err := source.IndexDir(stageDir)
		if err != nil {
			res.Status, res.Err = StatusError, &StageError{Stage: StageExtract, Window: c.Window, Err: err}
			return
		}
		if err := p.processFiles(log, c.Window, idx, res); err != nil {
			res.Status, res.Err = StatusError, err
			return
		}
	}

	if firstErr != nil {
		res.Status, res.Err = classify(firstErr), firstErr
	}
}

// alreadyProcessed reports whether the window's start date was in the
// ledger when the run began.
func (p *Pipeline) alreadyProcessed(log *slog.Logger, w source.TimeWindow) bool {
	day := w.Day().Format(ledger.DayLayout)
	if !p.done[day] {
		return false
	}
	log.Info("skipping window, day already in ledger", "day", day)
	return true
}

// fetchAndExtract downloads one window and unpacks it into stageDir.
func (p *Pipeline) fetchAndExtract(ctx context.Context, log *slog.Logger, w source.TimeWindow, stageDir string, res *ChunkResult) ([]string, error) {
	req := source.FetchRequest{
		Network: p.cfg.Network,
		Station: p.cfg.Station,
		Channel: p.cfg.Channel,
		Format:  p.cfg.Format,
		Window:  w,
	}

	fr := p.src.Fetch(ctx, req)
	res.Attempts += fr.Attempts
	res.Mirrored = res.Mirrored || fr.Mirrored
	if !fr.OK() {
		err := &StageError{Stage: StageFetch, Window: w, Err: fr.Err}
		log.Error("fetch failed",
			"window", w.String(),
			"status", fr.StatusCode,
			"attempts", fr.Attempts,
			"network_error", fr.NetworkError(),
			"error", fr.Err,
		)
		return nil, err
	}

	paths, err := archive.Extract(fr.Archive, stageDir)
	if err != nil {
		log.Error("archive extraction failed", "window", w.String(), "error", err)
		return nil, &StageError{Stage: StageExtract, Window: w, Err: err}
	}
	log.Debug("archive extracted", "window", w.String(), "files", len(paths), "bytes", len(fr.Archive))
	return paths, nil
}

// processFiles decodes, detects and appends one ledger row per file. File
// errors are logged and skipped. Only a ledger write error is returned.
func (p *Pipeline) processFiles(log *slog.Logger, w source.TimeWindow, idx *source.WaveformIndex, res *ChunkResult) error {
	labels := p.labels()
	for _, f := range idx.Files() {
		res.Files++

		row, err := p.processFile(log, w, f)
		if err != nil {
			res.FilesFailed++
			log.Warn("skipping file", "file", f.Name, "error", err)
			if m := metrics.Get(); m != nil {
				l := labels
				if se, ok := err.(*StageError); ok {
					l.Stage = se.Stage
				}
				m.IncFilesFailed(l)
			}
			continue
		}

		if err := p.ledger.Append(row); err != nil {
			return &StageError{Stage: StageLedger, Window: w, File: f.Name, Err: err}
		}

		res.Rows++
		res.Triggers += len(row.Triggers)
		if m := metrics.Get(); m != nil {
			m.IncFilesProcessed(labels)
			m.IncLedgerRows(labels)
			m.AddTriggers(labels, float64(len(row.Triggers)))
		}
		log.Debug("file processed", "file", f.Name, "triggers", len(row.Triggers))
	}
	return nil
}

// processFile turns one staged waveform file into a ledger row.
func (p *Pipeline) processFile(log *slog.Logger, w source.TimeWindow, f source.WaveformFile) (ledger.Row, error) {
	tr, err := source.ReadSACFile(f.Path)
	if err != nil {
		return ledger.Row{}, &StageError{Stage: StageDecode, Window: w, File: f.Name, Err: err}
	}

	v := ValidateTrace(tr, p.cfg.Station)
	for _, warn := range v.Warnings {
		log.Warn("trace validation warning", "file", f.Name, "warning", warn)
	}
	if !v.Passed {
		return ledger.Row{}, &StageError{Stage: StageValidate, Window: w, File: f.Name, Err: fmt.Errorf("%s", v.Error())}
	}

	triggers, err := detector.Detect(tr.Samples, tr.SamplingRate, p.cfg.Detector)
	if err != nil {
		return ledger.Row{}, &StageError{Stage: StageDetect, Window: w, File: f.Name, Err: err}
	}

	station := tr.Station
	if station == "" {
		station = p.cfg.Station
	}
	return ledger.Row{
		File:     f.Name,
		Station:  station,
		Start:    tr.StartTime,
		End:      tr.EndTime,
		Triggers: triggers,
	}, nil
}

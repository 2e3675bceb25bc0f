package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/seismic-trigger-catalog/internal/detector"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/ledger"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/logging"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/metadata"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/metrics"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/source"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/summary"
)

// DefaultWorkers is the worker pool size when none is configured.
const DefaultWorkers = 8

// Config configures a Pipeline.
type Config struct {
	Network     string
	Station     string
	Channel     string
	Format      string
	Granularity Granularity
	Workers     int
	StagingDir  string
	Detector    detector.Config
}

// Ledger is the subset of the trigger ledger the pipeline needs.
type Ledger interface {
	IsProcessed(day time.Time) (bool, error)
	Append(rows ...ledger.Row) error
}

// Pipeline implements the dispatcher → workers → collector flow.
// Chunks are independent and complete in any order.
type Pipeline struct {
	cfg     Config
	src     source.WaveformSource
	ledger  Ledger
	catalog metadata.Writer
	summary summary.Manager
	log     *slog.Logger

	// done is the set of ledger days found at the start of Run. Workers only
	// read it.
	done map[string]bool

	inFlight atomic.Int64
}

// New creates a pipeline. catalog and sums may be nil.
func New(cfg Config, src source.WaveformSource, l Ledger, catalog metadata.Writer, sums summary.Manager) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Granularity == "" {
		cfg.Granularity = Day
	}
	if catalog == nil {
		catalog, _ = metadata.NewWriter(metadata.CatalogConfig{})
	}
	if sums == nil {
		sums, _ = summary.NewManager(summary.Config{})
	}

	return &Pipeline{
		cfg:     cfg,
		src:     src,
		ledger:  l,
		catalog: catalog,
		summary: sums,
		log:     logging.Component("pipeline"),
	}
}

// Run processes every chunk of window and returns one result per chunk
// that reached a worker. Per-chunk and per-file failures are recorded in
// the report. The returned error is non-nil only for a ledger write failure
// or cancellation of ctx.
func (p *Pipeline) Run(ctx context.Context, window source.TimeWindow) (*Report, error) {
	chunks := Partition(window, p.cfg.Granularity)
	report := newReport(uuid.New().String(), p.cfg, window, len(chunks))
	if len(chunks) == 0 {
		report.finish(nil)
		return report, nil
	}

	p.log.Info("starting run",
		"run_id", report.RunID,
		"window", window.String(),
		"granularity", p.cfg.Granularity,
		"chunks", len(chunks),
		"workers", p.cfg.Workers,
	)

	p.done = p.processedDays(chunks)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queueSize := p.cfg.Workers * 2
	workQueue := make(chan Chunk, queueSize)
	resultChan := make(chan ChunkResult, queueSize)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go p.workerLoop(runCtx, i, report.RunID, workQueue, resultChan, &wg)
	}

	go p.dispatcherLoop(runCtx, chunks, workQueue)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var fatal error
	for result := range resultChan {
		report.add(result)
		if result.Fatal() && fatal == nil {
			fatal = result.Err
			p.log.Error("ledger write failed, stopping run", "error", result.Err)
			cancel()
		}
	}

	if fatal == nil && ctx.Err() != nil {
		fatal = ctx.Err()
	}
	report.finish(fatal)

	if err := p.summary.Save(context.Background(), report.Summary()); err != nil {
		p.log.Warn("failed to save run summary", "error", err)
	}

	t := report.Totals
	p.log.Info("run finished",
		"run_id", report.RunID,
		"chunks", t.Chunks,
		"succeeded", t.Succeeded,
		"skipped", t.Skipped,
		"failed", t.Failed,
		"errored", t.Errored,
		"pending", t.Pending,
		"rows", t.Rows,
		"triggers", t.Triggers,
		"duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
	)

	if fatal != nil {
		return report, fmt.Errorf("run %s: %w", report.RunID, fatal)
	}
	return report, nil
}

// processedDays snapshots which chunk days the ledger already holds, so rows
// appended during the run never cause later hours of the same day to be
// skipped. A ledger read error is logged and the day is treated as not
// processed.
func (p *Pipeline) processedDays(chunks []Chunk) map[string]bool {
	done := make(map[string]bool)
	checked := make(map[string]bool)
	for _, c := range chunks {
		windows := []source.TimeWindow{c.Window}
		if p.cfg.Granularity == Month {
			windows = DayWindows(c.Window)
		}
		for _, w := range windows {
			day := w.Day().Format(ledger.DayLayout)
			if checked[day] {
				continue
			}
			checked[day] = true

			ok, err := p.ledger.IsProcessed(w.Day())
			if err != nil {
				p.log.Warn("ledger check failed, processing anyway", "day", day, "error", err)
				continue
			}
			done[day] = ok
		}
	}
	return done
}

// dispatcherLoop sends chunks to workers.
func (p *Pipeline) dispatcherLoop(ctx context.Context, chunks []Chunk, workQueue chan<- Chunk) {
	defer close(workQueue)

	for _, c := range chunks {
		select {
		case <-ctx.Done():
			return
		case workQueue <- c:
		}
	}
}

// workerLoop processes chunks until the queue closes or ctx is cancelled.
func (p *Pipeline) workerLoop(ctx context.Context, workerID int, runID string, workQueue <-chan Chunk, results chan<- ChunkResult, wg *sync.WaitGroup) {
	defer wg.Done()
	log := logging.WorkerLogger(workerID)

	for c := range workQueue {
		if ctx.Err() != nil {
			log.Debug("worker stopping", "reason", ctx.Err())
			return
		}
		results <- p.processChunk(ctx, workerID, runID, c)
	}
}

func (p *Pipeline) labels() metrics.Labels {
	return metrics.Labels{Network: p.cfg.Network, Station: p.cfg.Station, Channel: p.cfg.Channel}
}

func (p *Pipeline) trackInFlight(delta int64) {
	n := p.inFlight.Add(delta)
	if m := metrics.Get(); m != nil {
		m.SetInFlightChunks(float64(n))
	}
}

// recordChunk writes the chunk outcome to metrics and the catalog. Catalog
// failures are logged only.
func (p *Pipeline) recordChunk(ctx context.Context, log *slog.Logger, runID string, r ChunkResult) {
	if m := metrics.Get(); m != nil {
		l := p.labels()
		switch r.Status {
		case StatusSuccess:
			m.IncChunksProcessed(l)
		case StatusSkipped:
			m.IncChunksSkipped(l)
		default:
			var se *StageError
			if errors.As(r.Err, &se) {
				l.Stage = se.Stage
			}
			m.IncChunksFailed(l)
		}
		m.ObserveChunkDuration(p.labels(), r.Duration.Seconds())
	}

	rec := metadata.ChunkRecord{
		RunID:       runID,
		Network:     p.cfg.Network,
		Station:     p.cfg.Station,
		Channel:     p.cfg.Channel,
		WindowStart: r.Chunk.Window.Start,
		WindowEnd:   r.Chunk.Window.End,
		Status:      string(r.Status),
		Files:       r.Files,
		FilesFailed: r.FilesFailed,
		Rows:        r.Rows,
		Triggers:    r.Triggers,
		Attempts:    r.Attempts,
		Mirrored:    r.Mirrored,
		Duration:    r.Duration,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}

	// Recorded even after the run is cancelled.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.catalog.RecordChunk(cctx, rec); err != nil {
		log.Warn("failed to record chunk in catalog", "error", err)
		if m := metrics.Get(); m != nil {
			m.IncCatalogErrors(metrics.Labels{Network: p.cfg.Network})
		}
	}
}

package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/withObsrvr/seismic-trigger-catalog/internal/source"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/summary"
)

// Report collects one result per chunk for the end-of-run summary.
type Report struct {
	RunID      string
	Config     Config
	Window     source.TimeWindow
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []ChunkResult
	Totals     summary.Totals
	Err        error

	mu sync.Mutex
}

func newReport(runID string, cfg Config, w source.TimeWindow, chunks int) *Report {
	return &Report{
		RunID:     runID,
		Config:    cfg,
		Window:    w,
		StartedAt: time.Now().UTC(),
		Totals:    summary.Totals{Chunks: chunks},
	}
}

func (r *Report) add(res ChunkResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Results = append(r.Results, res)
	switch res.Status {
	case StatusSuccess:
		r.Totals.Succeeded++
	case StatusSkipped:
		r.Totals.Skipped++
	case StatusFailed:
		r.Totals.Failed++
	default:
		r.Totals.Errored++
	}
	r.Totals.Files += res.Files
	r.Totals.FilesFailed += res.FilesFailed
	r.Totals.Rows += res.Rows
	r.Totals.Triggers += res.Triggers
}

// finish orders results by chunk index and counts chunks that never ran.
func (r *Report) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sort.Slice(r.Results, func(i, j int) bool {
		return r.Results[i].Chunk.Index < r.Results[j].Chunk.Index
	})
	r.Totals.Pending = r.Totals.Chunks - len(r.Results)
	r.FinishedAt = time.Now().UTC()
	r.Err = err
}

// Summary converts the report for persistence.
func (r *Report) Summary() *summary.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &summary.Summary{
		RunID:       r.RunID,
		Network:     r.Config.Network,
		Station:     r.Config.Station,
		Channel:     r.Config.Channel,
		Granularity: string(r.Config.Granularity),
		WindowStart: r.Window.Start,
		WindowEnd:   r.Window.End,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Totals:      r.Totals,
		Chunks:      make([]summary.Chunk, 0, len(r.Results)),
	}
	if r.Err != nil {
		s.FatalError = r.Err.Error()
	}

	for _, res := range r.Results {
		c := summary.Chunk{
			Start:       res.Chunk.Window.Start,
			End:         res.Chunk.Window.End,
			Status:      string(res.Status),
			Files:       res.Files,
			FilesFailed: res.FilesFailed,
			Rows:        res.Rows,
			Triggers:    res.Triggers,
			Attempts:    res.Attempts,
			Mirrored:    res.Mirrored,
			DurationMs:  res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			c.Error = res.Err.Error()
		}
		s.Chunks = append(s.Chunks, c)
	}
	return s
}

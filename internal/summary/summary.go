package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNoSummary is returned when no run summary exists.
	ErrNoSummary = errors.New("no run summary found")
)

// Summary describes one pipeline run.
type Summary struct {
	RunID       string    `json:"run_id"`
	Network     string    `json:"network"`
	Station     string    `json:"station"`
	Channel     string    `json:"channel"`
	Granularity string    `json:"granularity"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Totals      Totals    `json:"totals"`
	Chunks      []Chunk   `json:"chunks"`
	FatalError  string    `json:"fatal_error,omitempty"`
}

// Totals aggregates chunk outcomes.
type Totals struct {
	Chunks      int `json:"chunks"`
	Succeeded   int `json:"succeeded"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	Errored     int `json:"errored"`
	Pending     int `json:"pending"`
	Files       int `json:"files"`
	FilesFailed int `json:"files_failed"`
	Rows        int `json:"rows"`
	Triggers    int `json:"triggers"`
}

// Chunk is the outcome of one chunk.
type Chunk struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Status      string    `json:"status"`
	Files       int       `json:"files"`
	FilesFailed int       `json:"files_failed,omitempty"`
	Rows        int       `json:"rows"`
	Triggers    int       `json:"triggers"`
	Attempts    int       `json:"attempts,omitempty"`
	Mirrored    bool      `json:"mirrored,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
}

// Manager persists run summaries.
type Manager interface {
	// Load reads the most recent summary.
	Load(ctx context.Context) (*Summary, error)

	// Save persists a summary.
	Save(ctx context.Context, s *Summary) error
}

// Config configures the summary manager.
type Config struct {
	Enabled bool
	Dir     string
}

// NewManager creates a summary manager based on configuration.
func NewManager(cfg Config) (Manager, error) {
	if !cfg.Enabled {
		return &noopManager{}, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create summary directory %s: %w", cfg.Dir, err)
	}

	return &fileManager{dir: cfg.Dir}, nil
}

// fileManager writes one JSON file per run.
type fileManager struct {
	dir string
}

func (m *fileManager) summaryPath(s *Summary) string {
	filename := fmt.Sprintf("run_%s_%s_%s_%s.json",
		s.Network, s.Station, s.StartedAt.UTC().Format("20060102T150405"), s.RunID)
	return filepath.Join(m.dir, filename)
}

// Load returns the summary with the latest FinishedAt.
func (m *fileManager) Load(ctx context.Context) (*Summary, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSummary
		}
		return nil, fmt.Errorf("read summary directory: %w", err)
	}

	var latest *Summary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || !strings.HasPrefix(name, "run_") {
			continue
		}

		s, err := m.loadFromPath(filepath.Join(m.dir, name))
		if err != nil {
			return nil, err
		}
		if latest == nil || s.FinishedAt.After(latest.FinishedAt) {
			latest = s
		}
	}

	if latest == nil {
		return nil, ErrNoSummary
	}
	return latest, nil
}

func (m *fileManager) loadFromPath(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read summary file: %w", err)
	}

	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse summary file %s: %w", filepath.Base(path), err)
	}
	return &s, nil
}

// Save writes the summary atomically.
func (m *fileManager) Save(ctx context.Context, s *Summary) error {
	path := m.summaryPath(s)

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write summary temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename summary file: %w", err)
	}

	return nil
}

type noopManager struct{}

func (m *noopManager) Load(ctx context.Context) (*Summary, error) {
	return nil, ErrNoSummary
}

func (m *noopManager) Save(ctx context.Context, s *Summary) error {
	return nil
}

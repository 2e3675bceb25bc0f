package summary

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testSummary(id string, finished time.Time) *Summary {
	return &Summary{
		RunID:       id,
		Network:     "TX",
		Station:     "PB28",
		Channel:     "HHZ",
		Granularity: "day",
		WindowStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		StartedAt:   finished.Add(-time.Minute),
		FinishedAt:  finished,
		Totals:      Totals{Chunks: 2, Succeeded: 1, Skipped: 1, Rows: 3, Triggers: 5},
		Chunks: []Chunk{
			{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Status: "success", Rows: 3, Triggers: 5},
			{Start: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Status: "skipped"},
		},
	}
}

func TestFileManagerSaveLoad(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(Config{Enabled: true, Dir: dir})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()

	if _, err := m.Load(ctx); !errors.Is(err, ErrNoSummary) {
		t.Fatalf("empty dir: err = %v, want ErrNoSummary", err)
	}

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := m.Save(ctx, testSummary("older", base)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.Save(ctx, testSummary("newer", base.Add(time.Hour))); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RunID != "newer" {
		t.Errorf("RunID = %q, want newer", got.RunID)
	}
	if got.Totals.Triggers != 5 || len(got.Chunks) != 2 {
		t.Errorf("loaded = %+v", got)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileManagerCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "run_bad.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	m, _ := NewManager(Config{Enabled: true, Dir: dir})
	if _, err := m.Load(context.Background()); err == nil || errors.Is(err, ErrNoSummary) {
		t.Errorf("err = %v, want parse error", err)
	}
}

func TestNoopManager(t *testing.T) {
	m, err := NewManager(Config{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Save(context.Background(), testSummary("x", time.Now())); err != nil {
		t.Errorf("Save: %v", err)
	}
	if _, err := m.Load(context.Background()); !errors.Is(err, ErrNoSummary) {
		t.Errorf("Load: err = %v", err)
	}
}

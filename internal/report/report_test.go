package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/withObsrvr/seismic-trigger-catalog/internal/ledger"
)

func row(start time.Time, count int) ledger.Row {
	return ledger.Row{File: "x.SAC", Station: "PB28", Start: start, End: start.Add(time.Hour), Count: count}
}

func TestMonthlyTotals(t *testing.T) {
	rows := []ledger.Row{
		row(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), 4),
		row(time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC), 2),
		row(time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC), 1),
		row(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 0),
		row(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), 7),
	}

	got := MonthlyTotals(rows)

	want := []struct {
		label    string
		files    int
		triggers int
	}{
		{"2023-12", 1, 7},
		{"2024-01", 2, 2},
		{"2024-03", 2, 5},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d months, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Label() != w.label || got[i].Files != w.files || got[i].Triggers != w.triggers {
			t.Errorf("month %d = %s/%d/%d, want %s/%d/%d",
				i, got[i].Label(), got[i].Files, got[i].Triggers, w.label, w.files, w.triggers)
		}
	}
}

func TestMonthlyTotalsEmpty(t *testing.T) {
	if got := MonthlyTotals(nil); len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}
}

func TestBarLength(t *testing.T) {
	tests := []struct {
		n, peak, width, want int
	}{
		{10, 10, 50, 50},
		{5, 10, 50, 25},
		{1, 1000, 50, 1},
		{0, 10, 50, 0},
		{3, 0, 50, 0},
		{3, 10, 0, 0},
	}
	for _, tt := range tests {
		if got := BarLength(tt.n, tt.peak, tt.width); got != tt.want {
			t.Errorf("BarLength(%d, %d, %d) = %d, want %d", tt.n, tt.peak, tt.width, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	totals := []MonthTotal{
		{Month: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Files: 31, Triggers: 10},
		{Month: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Files: 29, Triggers: 5},
	}

	var buf bytes.Buffer
	if err := Render(&buf, totals, 10); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"2024-01", "2024-02", "10 (31 files)", "5 (29 files)", "total 15 triggers in 2 months"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "█"); n != 15 {
		t.Errorf("bar cells = %d, want 15", n)
	}
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, nil, 0); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "no ledger rows") {
		t.Errorf("output = %q", buf.String())
	}
}

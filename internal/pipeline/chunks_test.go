package pipeline

import (
	"testing"
	"time"

	"github.com/withObsrvr/seismic-trigger-catalog/internal/source"
)

func TestPartition(t *testing.T) {
	d := func(m time.Month, day, hour int) time.Time {
		return time.Date(2024, m, day, hour, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		g     Granularity
		want  [][2]time.Time
	}{
		{
			name:  "two days",
			start: d(1, 1, 0), end: d(1, 3, 0), g: Day,
			want: [][2]time.Time{{d(1, 1, 0), d(1, 2, 0)}, {d(1, 2, 0), d(1, 3, 0)}},
		},
		{
			name:  "day with clipped tail",
			start: d(1, 1, 0), end: d(1, 2, 12), g: Day,
			want: [][2]time.Time{{d(1, 1, 0), d(1, 2, 0)}, {d(1, 2, 0), d(1, 2, 12)}},
		},
		{
			name:  "hours",
			start: d(1, 1, 22), end: d(1, 2, 1), g: Hour,
			want: [][2]time.Time{{d(1, 1, 22), d(1, 1, 23)}, {d(1, 1, 23), d(1, 2, 0)}, {d(1, 2, 0), d(1, 2, 1)}},
		},
		{
			name:  "calendar months",
			start: d(1, 15, 0), end: d(3, 10, 0), g: Month,
			want: [][2]time.Time{{d(1, 15, 0), d(2, 1, 0)}, {d(2, 1, 0), d(3, 1, 0)}, {d(3, 1, 0), d(3, 10, 0)}},
		},
		{
			name:  "shorter than one chunk",
			start: d(1, 1, 0), end: d(1, 1, 6), g: Day,
			want: [][2]time.Time{{d(1, 1, 0), d(1, 1, 6)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Partition(source.TimeWindow{Start: tt.start, End: tt.end}, tt.g)
			if len(chunks) != len(tt.want) {
				t.Fatalf("got %d chunks, want %d", len(chunks), len(tt.want))
			}
			for i, c := range chunks {
				if !c.Window.Start.Equal(tt.want[i][0]) || !c.Window.End.Equal(tt.want[i][1]) {
					t.Errorf("chunk %d = %s, want [%s, %s)", i, c.Window, tt.want[i][0], tt.want[i][1])
				}
				if c.Index != i {
					t.Errorf("chunk %d has index %d", i, c.Index)
				}
			}
		})
	}
}

func TestDayWindowsAcrossYear(t *testing.T) {
	w := source.TimeWindow{
		Start: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	days := DayWindows(w)
	if len(days) != 2 || days[1].Day().Year() != 2024 {
		t.Errorf("days = %v", days)
	}
}

func TestParseGranularity(t *testing.T) {
	for _, s := range []string{"hour", "day", "month"} {
		if g, err := ParseGranularity(s); err != nil || string(g) != s {
			t.Errorf("ParseGranularity(%q) = %v, %v", s, g, err)
		}
	}
	if _, err := ParseGranularity("week"); err == nil {
		t.Error("expected error for week")
	}
}

package pipeline

import (
	"time"

	"github.com/withObsrvr/seismic-trigger-catalog/internal/source"
)

// Partition splits w into consecutive chunks. Hour and day chunks step from
// w.Start; month chunks follow calendar months. The first and last chunks
// are clipped to w.
func Partition(w source.TimeWindow, g Granularity) []Chunk {
	var out []Chunk
	for s := w.Start; s.Before(w.End); {
		e := next(s, g)
		if e.After(w.End) {
			e = w.End
		}
		out = append(out, Chunk{
			Window: source.TimeWindow{Start: s, End: e},
			Index:  len(out),
		})
		s = e
	}
	return out
}

func next(t time.Time, g Granularity) time.Time {
	switch g {
	case Hour:
		return t.Add(time.Hour)
	case Month:
		y, m, _ := t.Date()
		return time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// DayWindows splits w into day-sized windows, clipping the last.
func DayWindows(w source.TimeWindow) []source.TimeWindow {
	chunks := Partition(w, Day)
	out := make([]source.TimeWindow, len(chunks))
	for i, c := range chunks {
		out[i] = c.Window
	}
	return out
}

// stagingName is unique per chunk of a run.
func stagingName(c Chunk) string {
	return c.Window.Start.UTC().Format("20060102T150405")
}

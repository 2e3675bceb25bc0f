package ledger

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/withObsrvr/seismic-trigger-catalog/internal/detector"
)

// TimeLayout renders Start_Time and End_Time with microseconds and a Zulu
// suffix.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// DayLayout keys processed days.
const DayLayout = "2006-01-02"

// Header is the first record of every ledger file.
var Header = []string{"SAC_file", "Station", "Start_Time", "End_Time", "Number_of_Triggers", "Trigger_Times"}

var (
	// ErrLedgerWrite wraps every failure to persist a row. Callers treat it
	// as fatal for the run.
	ErrLedgerWrite = errors.New("ledger write failed")

	// ErrMalformedRow is returned when a record cannot be parsed.
	ErrMalformedRow = errors.New("malformed ledger row")
)

// Row is one processed waveform file.
type Row struct {
	File     string
	Station  string
	Start    time.Time
	End      time.Time
	Triggers []detector.Trigger

	// Count is Number_of_Triggers as read back. Record always writes
	// len(Triggers).
	Count int
}

// Day returns the UTC calendar date of Start.
func (r Row) Day() string {
	return r.Start.UTC().Format(DayLayout)
}

// Record renders the row in Header order.
func (r Row) Record() []string {
	return []string{
		r.File,
		r.Station,
		r.Start.UTC().Format(TimeLayout),
		r.End.UTC().Format(TimeLayout),
		strconv.Itoa(len(r.Triggers)),
		detector.FormatTriggers(r.Triggers),
	}
}

// ParseRecord parses a record written by Record.
func ParseRecord(rec []string) (Row, error) {
	if len(rec) != len(Header) {
		return Row{}, fmt.Errorf("%w: %d fields, want %d", ErrMalformedRow, len(rec), len(Header))
	}

	start, err := time.Parse(TimeLayout, rec[2])
	if err != nil {
		return Row{}, fmt.Errorf("%w: Start_Time: %v", ErrMalformedRow, err)
	}
	end, err := time.Parse(TimeLayout, rec[3])
	if err != nil {
		return Row{}, fmt.Errorf("%w: End_Time: %v", ErrMalformedRow, err)
	}
	count, err := strconv.Atoi(rec[4])
	if err != nil {
		return Row{}, fmt.Errorf("%w: Number_of_Triggers: %v", ErrMalformedRow, err)
	}
	triggers, err := detector.ParseTriggers(rec[5])
	if err != nil {
		return Row{}, fmt.Errorf("%w: Trigger_Times: %v", ErrMalformedRow, err)
	}

	return Row{
		File:     rec[0],
		Station:  rec[1],
		Start:    start,
		End:      end,
		Triggers: triggers,
		Count:    count,
	}, nil
}

// Ledger is an append-only CSV file of processed waveform files. Appends
// are serialized within the process by a mutex and across processes by an
// advisory file lock.
type Ledger struct {
	path string
	mu   sync.Mutex
	log  *slog.Logger
}

// Open prepares a ledger at path. The file itself is created on the first
// append.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory %s: %w", dir, err)
		}
	}
	return &Ledger{
		path: path,
		log:  slog.With("component", "ledger", "path", path),
	}, nil
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.path
}

// Append writes rows in order. The header is written first when the file is
// empty. Every error wraps ErrLedgerWrite.
func (l *Ledger) Append(rows ...Row) error {
	if len(rows) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrLedgerWrite, l.path, err)
	}
	defer f.Close()

	if err := lockFile(f, true); err != nil {
		return fmt.Errorf("%w: lock %s: %v", ErrLedgerWrite, l.path, err)
	}
	defer unlockFile(f)

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrLedgerWrite, l.path, err)
	}

	w := csv.NewWriter(f)
	if fi.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("%w: header: %v", ErrLedgerWrite, err)
		}
	}
	for _, r := range rows {
		if err := w.Write(r.Record()); err != nil {
			return fmt.Errorf("%w: row %s: %v", ErrLedgerWrite, r.File, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrLedgerWrite, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrLedgerWrite, err)
	}
	return nil
}

// IsProcessed reports whether any row starts on day (UTC). The whole file is
// read on every call.
func (l *Ledger) IsProcessed(day time.Time) (bool, error) {
	want := day.UTC().Format(DayLayout)
	found := false
	err := l.scan(func(rec []string, col int) bool {
		if col < len(rec) && dayOf(rec[col]) == want {
			found = true
			return false
		}
		return true
	})
	return found, err
}

// ProcessedDays returns the set of UTC dates with at least one row.
func (l *Ledger) ProcessedDays() (map[string]bool, error) {
	days := make(map[string]bool)
	err := l.scan(func(rec []string, col int) bool {
		if col < len(rec) {
			if d := dayOf(rec[col]); d != "" {
				days[d] = true
			}
		}
		return true
	})
	return days, err
}

// Rows returns every parseable row in file order. Malformed records are
// logged and skipped.
func (l *Ledger) Rows() ([]Row, error) {
	var rows []Row
	err := l.scan(func(rec []string, _ int) bool {
		r, err := ParseRecord(rec)
		if err != nil {
			l.log.Warn("skipping ledger row", "error", err)
			return true
		}
		rows = append(rows, r)
		return true
	})
	return rows, err
}

// scan calls fn for each data record with the index of the Start_Time
// column until fn returns false. A missing file has no records.
func (l *Ledger) scan(fn func(rec []string, startCol int) bool) error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if err := lockFile(f, false); err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	defer unlockFile(f)

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read ledger header: %w", err)
	}
	col := -1
	for i, h := range header {
		if strings.TrimSpace(h) == "Start_Time" {
			col = i
			break
		}
	}
	if col < 0 {
		return fmt.Errorf("%w: no Start_Time column", ErrMalformedRow)
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ledger: %w", err)
		}
		if !fn(rec, col) {
			return nil
		}
	}
}

// dayOf extracts the date from a Start_Time value. Values that do not parse
// fall back to their leading date text.
func dayOf(v string) string {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(TimeLayout, v); err == nil {
		return t.Format(DayLayout)
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC().Format(DayLayout)
	}
	if len(v) >= len(DayLayout) {
		if _, err := time.Parse(DayLayout, v[:len(DayLayout)]); err == nil {
			return v[:len(DayLayout)]
		}
	}
	return ""
}

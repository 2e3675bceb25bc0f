package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// QueryTimeLayout is the timestamp form the FDSN dataselect service expects.
const QueryTimeLayout = "2006-01-02T15:04:05"

var (
	// ErrInvalidWindow is returned when a window does not satisfy start < end.
	ErrInvalidWindow = errors.New("invalid time window")

	// ErrMaxRetries is the terminal error once retryable statuses exhaust
	// the attempt budget.
	ErrMaxRetries = errors.New("max retries reached")

	// ErrUnexpectedStatus wraps any non-success status that is not retried.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow validates start < end and normalizes both to UTC.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	if !start.Before(end) {
		return TimeWindow{}, fmt.Errorf("%w: start %s not before end %s",
			ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return TimeWindow{Start: start.UTC(), End: end.UTC()}, nil
}

// Day returns the calendar date (UTC midnight) the window starts on.
func (w TimeWindow) Day() time.Time {
	y, m, d := w.Start.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Duration returns End - Start.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(QueryTimeLayout), w.End.Format(QueryTimeLayout))
}

// FetchRequest fully determines one query against the waveform service.
type FetchRequest struct {
	Network string
	Station string
	Channel string
	Format  string
	Window  TimeWindow
}

// Query renders the request as FDSN dataselect query parameters.
func (r FetchRequest) Query() url.Values {
	q := url.Values{}
	q.Set("net", r.Network)
	q.Set("sta", r.Station)
	q.Set("cha", r.Channel)
	q.Set("format", r.Format)
	q.Set("starttime", r.Window.Start.UTC().Format(QueryTimeLayout))
	q.Set("endtime", r.Window.End.UTC().Format(QueryTimeLayout))
	return q
}

// ResultKind tags a FetchResult.
type ResultKind int

const (
	Success ResultKind = iota
	RetryableFailure
	TerminalFailure
)

func (k ResultKind) String() string {
	switch k {
	case Success:
		return "success"
	case RetryableFailure:
		return "retryable"
	case TerminalFailure:
		return "terminal"
	default:
		return "unknown"
	}
}

// FetchResult is the outcome of a fetch. Archive is set only on Success.
// StatusCode is zero when no HTTP response was received.
type FetchResult struct {
	Kind       ResultKind
	Archive    []byte
	StatusCode int
	Attempts   int
	Mirrored   bool
	Err        error
}

// OK reports whether the fetch produced an archive.
func (r FetchResult) OK() bool {
	return r.Kind == Success
}

// NetworkError reports whether the failure happened below HTTP.
func (r FetchResult) NetworkError() bool {
	return r.Kind == TerminalFailure && r.StatusCode == 0 && r.Err != nil
}

// WaveformSource retrieves waveform archives for a request.
// Implementations never panic on remote failures; they report them in the
// returned FetchResult.
type WaveformSource interface {
	Fetch(ctx context.Context, req FetchRequest) FetchResult
	Close() error
}

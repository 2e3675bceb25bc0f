package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func testRequest(t *testing.T) FetchRequest {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w, err := NewTimeWindow(start, start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("NewTimeWindow: %v", err)
	}
	return FetchRequest{Network: "TX", Station: "PB28", Channel: "HHZ", Format: "sac.zip", Window: w}
}

// statusServer answers every request with the next status in codes,
// repeating the last one.
type statusServer struct {
	mu      sync.Mutex
	codes   []int
	body    []byte
	queries []string
}

func (s *statusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.queries = append(s.queries, r.URL.RawQuery)
	n := len(s.queries)
	code := s.codes[len(s.codes)-1]
	if n <= len(s.codes) {
		code = s.codes[n-1]
	}
	s.mu.Unlock()

	w.WriteHeader(code)
	if code == http.StatusOK {
		w.Write(s.body)
	}
}

func (s *statusServer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

func newTestFetcher(url string) (*Fetcher, *[]time.Duration) {
	var slept []time.Duration
	f := NewFetcher(FetcherConfig{
		BaseURL:       url,
		Timeout:       5 * time.Second,
		MaxAttempts:   3,
		Backoff:       5 * time.Second,
		RetryStatuses: []int{http.StatusRequestEntityTooLarge},
	})
	f.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return f, &slept
}

func TestFetchSuccess(t *testing.T) {
	srv := &statusServer{codes: []int{http.StatusOK}, body: []byte("PK archive")}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	f, _ := newTestFetcher(ts.URL)
	res := f.Fetch(context.Background(), testRequest(t))

	if !res.OK() {
		t.Fatalf("expected success, got %v (%v)", res.Kind, res.Err)
	}
	if string(res.Archive) != "PK archive" {
		t.Errorf("archive = %q", res.Archive)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
}

func TestFetchQueryParameters(t *testing.T) {
	srv := &statusServer{codes: []int{http.StatusOK}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	f, _ := newTestFetcher(ts.URL)
	f.Fetch(context.Background(), testRequest(t))

	want := "cha=HHZ&endtime=2024-01-02T00%3A00%3A00&format=sac.zip&net=TX&sta=PB28&starttime=2024-01-01T00%3A00%3A00"
	if srv.queries[0] != want {
		t.Errorf("query = %q\nwant    %q", srv.queries[0], want)
	}
}

func TestFetch413ExhaustsRetries(t *testing.T) {
	srv := &statusServer{codes: []int{http.StatusRequestEntityTooLarge}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	f, slept := newTestFetcher(ts.URL)
	res := f.Fetch(context.Background(), testRequest(t))

	if res.Kind != TerminalFailure {
		t.Fatalf("kind = %v, want terminal", res.Kind)
	}
	if !errors.Is(res.Err, ErrMaxRetries) {
		t.Errorf("error = %v, want ErrMaxRetries", res.Err)
	}
	if got := srv.calls(); got != 3 {
		t.Errorf("server saw %d requests, want exactly 3", got)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
	if len(*slept) != 2 {
		t.Errorf("slept %d times, want 2 (between attempts only)", len(*slept))
	}
	for _, d := range *slept {
		if d != 5*time.Second {
			t.Errorf("backoff = %v, want 5s", d)
		}
	}
	if res.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", res.StatusCode)
	}
}

func TestFetch413ThenSuccess(t *testing.T) {
	srv := &statusServer{codes: []int{http.StatusRequestEntityTooLarge, http.StatusOK}, body: []byte("zip")}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	f, _ := newTestFetcher(ts.URL)
	res := f.Fetch(context.Background(), testRequest(t))

	if !res.OK() {
		t.Fatalf("expected success after retry, got %v", res.Err)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
}

func TestFetchOtherStatusIsTerminal(t *testing.T) {
	tests := []int{
		http.StatusNoContent,
		http.StatusBadRequest,
		http.StatusNotFound,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
	}

	for _, code := range tests {
		srv := &statusServer{codes: []int{code}}
		ts := httptest.NewServer(srv)

		f, slept := newTestFetcher(ts.URL)
		res := f.Fetch(context.Background(), testRequest(t))
		ts.Close()

		if res.Kind != TerminalFailure {
			t.Errorf("status %d: kind = %v, want terminal", code, res.Kind)
		}
		if !errors.Is(res.Err, ErrUnexpectedStatus) {
			t.Errorf("status %d: error = %v", code, res.Err)
		}
		if srv.calls() != 1 {
			t.Errorf("status %d: %d requests, want 1", code, srv.calls())
		}
		if len(*slept) != 0 {
			t.Errorf("status %d: should not back off", code)
		}
	}
}

func TestFetchNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	f, _ := newTestFetcher(url)
	res := f.Fetch(context.Background(), testRequest(t))

	if res.Kind != TerminalFailure {
		t.Fatalf("kind = %v, want terminal", res.Kind)
	}
	if !res.NetworkError() {
		t.Errorf("expected a network error, got status %d err %v", res.StatusCode, res.Err)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
}

func TestFetchCancelledDuringBackoff(t *testing.T) {
	srv := &statusServer{codes: []int{http.StatusRequestEntityTooLarge}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	f, _ := newTestFetcher(ts.URL)
	f.sleep = sleepContext
	f.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res := f.Fetch(ctx, testRequest(t))
	if res.Kind != TerminalFailure || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("got %v / %v, want terminal context.Canceled", res.Kind, res.Err)
	}
	if srv.calls() != 1 {
		t.Errorf("requests = %d, want 1", srv.calls())
	}
}

func TestNewTimeWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	if _, err := NewTimeWindow(start, start); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("equal bounds: err = %v", err)
	}
	if _, err := NewTimeWindow(start, start.Add(-time.Hour)); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("reversed bounds: err = %v", err)
	}

	w, err := NewTimeWindow(start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("valid window: %v", err)
	}
	if !w.Day().Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Day = %v", w.Day())
	}
	if w.Duration() != time.Hour {
		t.Errorf("Duration = %v", w.Duration())
	}
}

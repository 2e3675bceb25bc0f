package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/withObsrvr/seismic-trigger-catalog/internal/logging"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/metrics"
)

// FetcherConfig configures the FDSN fetcher.
type FetcherConfig struct {
	BaseURL       string
	Timeout       time.Duration
	MaxAttempts   int
	Backoff       time.Duration
	RetryStatuses []int

	// RequestsPerSecond caps outgoing requests across all workers. Zero
	// disables the limiter.
	RequestsPerSecond float64
}

// Fetcher queries an FDSN dataselect endpoint over HTTP.
type Fetcher struct {
	client      *http.Client
	baseURL     string
	maxAttempts int
	backoff     time.Duration
	retryable   map[int]bool
	limiter     *rate.Limiter
	log         *slog.Logger

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a fetcher. An unset timeout becomes 30s and an unset
// attempt budget becomes 3.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}

	retryable := make(map[int]bool, len(cfg.RetryStatuses))
	for _, code := range cfg.RetryStatuses {
		retryable[code] = true
	}

	f := &Fetcher{
		client:      &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		retryable:   retryable,
		log:         slog.With("component", "fetcher"),
		sleep:       sleepContext,
	}
	if cfg.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return f
}

// Fetch performs the request, retrying statuses in the retry list with a
// fixed backoff. Every other failure is terminal on first sight.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) FetchResult {
	log := f.log.With("window", req.Window.String())
	if id := logging.CorrelationID(ctx); id != "" {
		log = log.With("correlation_id", id)
	}

	for attempt := 1; ; attempt++ {
		res := f.attempt(ctx, req)
		res.Attempts = attempt
		if res.Kind != RetryableFailure {
			return res
		}

		if attempt >= f.maxAttempts {
			log.Error("giving up on window", "status", res.StatusCode, "attempts", attempt)
			return FetchResult{
				Kind:       TerminalFailure,
				StatusCode: res.StatusCode,
				Attempts:   attempt,
				Err:        fmt.Errorf("%w: status %d after %d attempts", ErrMaxRetries, res.StatusCode, attempt),
			}
		}

		log.Warn("retryable status, backing off",
			"status", res.StatusCode,
			"attempt", attempt,
			"backoff", f.backoff,
		)
		if m := metrics.Get(); m != nil {
			m.IncRetryAttempts(metrics.Labels{Network: req.Network, Operation: "fetch"})
		}

		if err := f.sleep(ctx, f.backoff); err != nil {
			return FetchResult{Kind: TerminalFailure, Attempts: attempt, Err: err}
		}
	}
}

// attempt issues exactly one HTTP request.
func (f *Fetcher) attempt(ctx context.Context, req FetchRequest) FetchResult {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return FetchResult{Kind: TerminalFailure, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	labels := metrics.Labels{Network: req.Network, Station: req.Station, Channel: req.Channel}
	started := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+req.Query().Encode(), nil)
	if err != nil {
		return FetchResult{Kind: TerminalFailure, Err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		f.record(labels, "network_error", started)
		return FetchResult{Kind: TerminalFailure, Err: fmt.Errorf("GET %s: %w", f.baseURL, err)}
	}
	defer resp.Body.Close()

	f.record(labels, strconv.Itoa(resp.StatusCode), started)

	if f.retryable[resp.StatusCode] {
		io.Copy(io.Discard, resp.Body)
		return FetchResult{Kind: RetryableFailure, StatusCode: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return FetchResult{
			Kind:       TerminalFailure,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{Kind: TerminalFailure, Err: fmt.Errorf("read body: %w", err)}
	}

	return FetchResult{Kind: Success, Archive: body, StatusCode: resp.StatusCode}
}

func (f *Fetcher) record(l metrics.Labels, outcome string, started time.Time) {
	m := metrics.Get()
	if m == nil {
		return
	}
	l.Outcome = outcome
	m.IncFetchAttempts(l)
	m.ObserveFetchDuration(l, time.Since(started).Seconds())
}

// Close releases idle connections.
func (f *Fetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

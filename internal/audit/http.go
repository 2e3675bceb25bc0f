package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// HTTPEmitter posts events to an endpoint and keeps a local copy of each.
type HTTPEmitter struct {
	endpoint     string
	client       *http.Client
	chainTracker *ChainTracker
	backup       *FileBackup

	retries int
	delay   time.Duration
}

// NewHTTPEmitter creates an emitter posting to endpoint with chain state
// and backups in dir.
func NewHTTPEmitter(endpoint, dir string) (*HTTPEmitter, error) {
	chainTracker, err := NewChainTracker(dir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}
	backup, err := NewFileBackup(dir)
	if err != nil {
		return nil, fmt.Errorf("create file backup: %w", err)
	}

	return &HTTPEmitter{
		endpoint:     endpoint,
		client:       &http.Client{Timeout: 30 * time.Second},
		chainTracker: chainTracker,
		backup:       backup,
		retries:      3,
		delay:        time.Second,
	}, nil
}

// Emit links evt to its chain, backs it up and posts it. The chain head
// only advances after a successful post.
func (e *HTTPEmitter) Emit(ctx context.Context, evt *Event) error {
	chainKey := evt.Stream.ChainKey()

	prevHash, err := e.chainTracker.GetHead(chainKey)
	if err != nil && !errors.Is(err, ErrNoChainHead) {
		return fmt.Errorf("get chain head: %w", err)
	}

	prepare(evt)
	evt.SetChainHashes(prevHash)

	log.Printf("[audit] emitting %s for %s", evt.EventType, chainKey)
	if prevHash == "" {
		log.Printf("[audit] prev_hash=null (first in chain)")
	} else {
		log.Printf("[audit] prev_hash=%s", prevHash)
	}
	log.Printf("[audit] event_hash=%s", evt.Chain.EventHash)

	if err := e.backup.Save(evt); err != nil {
		log.Printf("[audit] warning: backup failed: %v", err)
	}

	if err := e.postWithRetry(ctx, evt); err != nil {
		return fmt.Errorf("audit emit failed: %w", err)
	}

	if err := e.chainTracker.SetHead(chainKey, evt.Chain.EventHash); err != nil {
		log.Printf("[audit] warning: failed to update chain head: %v", err)
	}
	return nil
}

func (e *HTTPEmitter) postWithRetry(ctx context.Context, evt *Event) error {
	var lastErr error
	delay := e.delay

	for attempt := 1; attempt <= e.retries; attempt++ {
		err := e.post(ctx, evt)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < e.retries {
			log.Printf("[audit] attempt %d/%d failed: %v, retrying in %v", attempt, e.retries, err, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", e.retries, lastErr)
}

func (e *HTTPEmitter) post(ctx context.Context, evt *Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Printf("[audit] POST %s -> %s", e.endpoint, resp.Status)
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
}

// Close releases resources.
func (e *HTTPEmitter) Close() error {
	return nil
}

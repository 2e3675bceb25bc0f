package audit

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
)

// Config configures audit emission.
type Config struct {
	Enabled  bool
	Endpoint string // optional HTTP collector
	Dir      string // chain heads and event backups
}

// Record is what callers report. It becomes an Event on emission.
type Record struct {
	Type      string
	Network   string
	Station   string
	Channel   string
	RunID     string
	Start     time.Time
	End       time.Time
	Artifacts map[string]ArtifactInfo
	Producer  ProducerInfo
}

// Emitter publishes audit records.
type Emitter interface {
	Emit(ctx context.Context, rec Record) error
	Close() error
}

// NewEmitter returns an HTTP emitter when an endpoint is configured, a
// file-only emitter otherwise, and a no-op emitter when disabled or when
// the state directory cannot be prepared.
func NewEmitter(cfg Config) Emitter {
	if !cfg.Enabled {
		return noopEmitter{}
	}
	if cfg.Dir == "" {
		cfg.Dir = "./audit"
	}

	if cfg.Endpoint != "" {
		emitter, err := NewHTTPEmitter(cfg.Endpoint, cfg.Dir)
		if err != nil {
			log.Printf("[audit] failed to create HTTP emitter: %v, falling back to file-only", err)
			return fileOnly(cfg.Dir)
		}
		log.Printf("[audit] using HTTP emitter -> %s", cfg.Endpoint)
		return &httpEmitterWrapper{emitter: emitter}
	}
	return fileOnly(cfg.Dir)
}

func fileOnly(dir string) Emitter {
	emitter, err := NewFileOnlyEmitter(dir)
	if err != nil {
		log.Printf("[audit] failed to create file emitter: %v, using no-op", err)
		return noopEmitter{}
	}
	log.Printf("[audit] using file-only emitter -> %s", dir)
	return &fileOnlyEmitterWrapper{emitter: emitter}
}

// ArtifactFromFile checksums the file at path.
func ArtifactFromFile(path string, rows int64) (ArtifactInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ArtifactInfo{}, fmt.Errorf("read artifact: %w", err)
	}
	return ArtifactInfo{
		Checksum: Checksum(data),
		RowCount: rows,
		Path:     path,
		ByteSize: int64(len(data)),
	}, nil
}

func toEvent(rec Record) Event {
	return Event{
		EventType: rec.Type,
		Stream: StreamInfo{
			Network: rec.Network,
			Station: rec.Station,
			Channel: rec.Channel,
		},
		Window: WindowInfo{
			RunID: rec.RunID,
			Start: rec.Start.UTC(),
			End:   rec.End.UTC(),
		},
		Artifacts: rec.Artifacts,
		Producer:  rec.Producer,
	}
}

// prepare stamps the fields owned by the emitter.
func prepare(evt *Event) {
	evt.Version = EventVersion
	evt.EventID = uuid.New().String()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
}

type httpEmitterWrapper struct {
	emitter *HTTPEmitter
}

func (w *httpEmitterWrapper) Emit(ctx context.Context, rec Record) error {
	evt := toEvent(rec)
	return w.emitter.Emit(ctx, &evt)
}

func (w *httpEmitterWrapper) Close() error {
	return w.emitter.Close()
}

type fileOnlyEmitterWrapper struct {
	emitter *FileOnlyEmitter
}

func (w *fileOnlyEmitterWrapper) Emit(_ context.Context, rec Record) error {
	evt := toEvent(rec)
	return w.emitter.Emit(&evt)
}

func (w *fileOnlyEmitterWrapper) Close() error {
	return w.emitter.Close()
}

type noopEmitter struct{}

func (noopEmitter) Emit(_ context.Context, _ Record) error { return nil }
func (noopEmitter) Close() error                          { return nil }

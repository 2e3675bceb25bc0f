// Package audit emits a tamper-evident, hash-chained record of the
// artifacts the catalog produces: the ledger at the end of a run and each
// Parquet export.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// EventVersion is the version of the event document.
const EventVersion = "1.0"

// Event types.
const (
	EventRunComplete  = "run_complete"
	EventLedgerExport = "ledger_export"
)

// Artifact names.
const (
	ArtifactLedger  = "ledger"
	ArtifactParquet = "trigger_catalog"
)

const checksumPrefix = "sha256:"

// Event is one audit record.
type Event struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	Stream    StreamInfo              `json:"stream"`
	Window    WindowInfo              `json:"window"`
	Artifacts map[string]ArtifactInfo `json:"artifacts"`
	Producer  ProducerInfo            `json:"producer"`
	Chain     ChainInfo               `json:"chain"`
}

// StreamInfo identifies the waveform stream the event covers.
type StreamInfo struct {
	Network string `json:"network"`
	Station string `json:"station"`
	Channel string `json:"channel"`
}

// ChainKey returns the key of the hash chain this stream belongs to.
func (s StreamInfo) ChainKey() string {
	return s.Network + "/" + s.Station + "/" + s.Channel
}

// WindowInfo is the time range and run the event refers to. Exports leave
// it zero.
type WindowInfo struct {
	RunID string    `json:"run_id,omitempty"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ArtifactInfo describes one produced file.
type ArtifactInfo struct {
	Checksum string `json:"checksum"`
	RowCount int64  `json:"row_count"`
	Path     string `json:"path"`
	ByteSize int64  `json:"byte_size"`
}

// ProducerInfo identifies the software that produced the artifacts.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha"`
}

// ChainInfo links an event to its predecessor on the same chain.
type ChainInfo struct {
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
}

// ComputeEventHash hashes the JSON encoding of evt with event_hash
// cleared. Map keys are encoded in sorted order, so artifact insertion
// order does not matter.
func ComputeEventHash(evt *Event) string {
	c := *evt
	c.Chain.EventHash = ""

	canonical, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return Checksum(canonical)
}

// SetChainHashes links evt to prev and computes its own hash.
func (e *Event) SetChainHashes(prev string) {
	e.Chain.PrevEventHash = prev
	e.Chain.EventHash = ComputeEventHash(e)
}

// Checksum returns the prefixed SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return checksumPrefix + hex.EncodeToString(sum[:])
}

package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// FileBackup keeps every emitted event as a JSON file.
type FileBackup struct {
	dir string
}

// NewFileBackup creates dir if needed.
func NewFileBackup(dir string) (*FileBackup, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &FileBackup{dir: dir}, nil
}

// Save writes evt to {network}_{station}_{channel}_{event_type}_{event_id}.json.
func (f *FileBackup) Save(evt *Event) error {
	filename := fmt.Sprintf("%s_%s_%s_%s_%s.json",
		evt.Stream.Network,
		evt.Stream.Station,
		evt.Stream.Channel,
		evt.EventType,
		evt.EventID,
	)
	path := filepath.Join(f.dir, filename)

	data, err := json.MarshalIndent(evt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	log.Printf("[audit] backed up to %s", path)
	return nil
}

// FileOnlyEmitter chains events and writes them to local files.
type FileOnlyEmitter struct {
	chainTracker *ChainTracker
	backup       *FileBackup
}

// NewFileOnlyEmitter keeps chain heads and events in dir.
func NewFileOnlyEmitter(dir string) (*FileOnlyEmitter, error) {
	chainTracker, err := NewChainTracker(dir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}
	backup, err := NewFileBackup(dir)
	if err != nil {
		return nil, fmt.Errorf("create file backup: %w", err)
	}
	return &FileOnlyEmitter{chainTracker: chainTracker, backup: backup}, nil
}

// Emit links evt to its chain and saves it.
func (e *FileOnlyEmitter) Emit(evt *Event) error {
	chainKey := evt.Stream.ChainKey()
	prevHash, _ := e.chainTracker.GetHead(chainKey)

	prepare(evt)
	evt.SetChainHashes(prevHash)

	log.Printf("[audit] file-only emit %s for %s event_hash=%s", evt.EventType, chainKey, evt.Chain.EventHash)

	if err := e.backup.Save(evt); err != nil {
		return err
	}
	if err := e.chainTracker.SetHead(chainKey, evt.Chain.EventHash); err != nil {
		log.Printf("[audit] warning: failed to update chain head: %v", err)
	}
	return nil
}

// Close releases resources.
func (e *FileOnlyEmitter) Close() error {
	return nil
}

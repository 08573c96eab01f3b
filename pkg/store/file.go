package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/itohio/gopulse/pkg/hrv"
)

// fileRecord is the on-disk layout: the four labelled values plus metadata.
type fileRecord struct {
	MeanHR  int `json:"Mean HR"`
	MeanPPI int `json:"Mean PPI"`
	RMSSD   int `json:"RMSSD"`
	SDNN    int `json:"SDNN"`

	SessionID string    `json:"session_id,omitempty"`
	Time      time.Time `json:"time,omitzero"`
	Beats     int       `json:"beats,omitempty"`
}

// FileStore keeps the latest snapshot as a single JSON object in a file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save replaces the stored snapshot. The file is written to a temporary name
// and renamed so a crash never leaves a half-written record.
func (f *FileStore) Save(_ context.Context, s hrv.Snapshot) error {
	data, err := json.MarshalIndent(fileRecord{
		MeanHR:    s.MeanHR,
		MeanPPI:   s.MeanPPI,
		RMSSD:     s.RMSSD,
		SDNN:      s.SDNN,
		SessionID: s.SessionID,
		Time:      s.Time,
		Beats:     s.Beats,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

// Load reads the stored snapshot.
func (f *FileStore) Load(_ context.Context) (hrv.Snapshot, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return hrv.Snapshot{}, false, nil
	}
	if err != nil {
		return hrv.Snapshot{}, false, fmt.Errorf("failed to read history file: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return hrv.Snapshot{}, false, fmt.Errorf("failed to parse history file: %w", err)
	}

	return hrv.Snapshot{
		SessionID: rec.SessionID,
		Time:      rec.Time,
		Beats:     rec.Beats,
		MeanHR:    rec.MeanHR,
		MeanPPI:   rec.MeanPPI,
		RMSSD:     rec.RMSSD,
		SDNN:      rec.SDNN,
	}, true, nil
}

// Close is a no-op; the file is only open during Save and Load.
func (f *FileStore) Close() error {
	return nil
}

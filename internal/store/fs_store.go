package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
)

// FSStore implements the Store interface on the filesystem.
// Records are stored as <baseDir>/tunings/<id>/record.json with the trial
// trace next to them in trace.jsonl.
//
// Writes go through a temp file and rename, so concurrent readers never see
// a partially written record.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string { return fs.baseDir }

func (fs *FSStore) tuningsDir() string {
	return filepath.Join(fs.baseDir, "tunings")
}

func (fs *FSStore) recordDir(id string) string {
	return filepath.Join(fs.tuningsDir(), id)
}

func (fs *FSStore) recordPath(id string) string {
	return filepath.Join(fs.recordDir(id), "record.json")
}

// SaveRecord atomically saves rec after validating it.
func (fs *FSStore) SaveRecord(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	dir := fs.recordDir(rec.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	finalPath := fs.recordPath(rec.ID)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp record file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename record file: %w", err)
	}

	slog.Debug("Tuning record saved", "id", rec.ID, "path", finalPath)
	return nil
}

// LoadRecord retrieves the record with the given ID.
func (fs *FSStore) LoadRecord(id string) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("id cannot be empty")
	}

	path := fs.recordPath(id)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}

	slog.Debug("Tuning record loaded", "id", id, "path", path)
	return &rec, nil
}

// records loads every readable record. Corrupted ones are skipped.
func (fs *FSStore) records() ([]*Record, error) {
	entries, err := os.ReadDir(fs.tuningsDir())
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read tunings directory: %w", err)
	}

	var recs []*Record
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if _, err := os.Stat(fs.recordPath(id)); os.IsNotExist(err) {
			continue
		}
		rec, err := fs.LoadRecord(id)
		if err != nil {
			slog.Warn("Failed to load tuning record", "id", id, "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	// Newest first
	slices.SortFunc(recs, func(a, b *Record) int { return b.Timestamp.Compare(a.Timestamp) })
	return recs, nil
}

// ListRecords returns metadata for all stored records, newest first.
func (fs *FSStore) ListRecords() ([]RecordInfo, error) {
	recs, err := fs.records()
	if err != nil {
		return nil, err
	}
	infos := make([]RecordInfo, 0, len(recs))
	for _, rec := range recs {
		infos = append(infos, rec.ToInfo())
	}
	slog.Debug("Listed tuning records", "count", len(infos))
	return infos, nil
}

// FindBest returns the newest record matching the device, kernel and
// global size.
func (fs *FSStore) FindBest(deviceUUID, kernel string, global []int) (*Record, error) {
	recs, err := fs.records()
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.Matches(deviceUUID, kernel, global) {
			return rec, nil
		}
	}
	return nil, &NotFoundError{ID: fmt.Sprintf("%s/%s%v", deviceUUID, kernel, global)}
}

// DeleteRecord removes the record and its trace.
func (fs *FSStore) DeleteRecord(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}

	dir := fs.recordDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{ID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat record directory: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove record directory: %w", err)
	}

	slog.Debug("Tuning record deleted", "id", id, "path", dir)
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileArchive keeps records in memory and persists them as a JSON array
// after every change.
type FileArchive struct {
	filePath string
	ttl      time.Duration
	items    map[string]Record
	now      func() time.Time
	mu       sync.RWMutex
}

// OpenFile loads the archive at path, dropping expired records. A missing
// file starts an empty archive.
func OpenFile(path string, ttl time.Duration) (*FileArchive, error) {
	fa := &FileArchive{
		filePath: path,
		ttl:      ttl,
		items:    make(map[string]Record),
		now:      time.Now,
	}
	if err := fa.load(); err != nil {
		return nil, err
	}
	return fa, nil
}

func (fa *FileArchive) load() error {
	data, err := os.ReadFile(fa.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read archive file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to unmarshal archive: %w", err)
	}

	limit := cutoff(fa.now(), fa.ttl)
	for _, r := range records {
		if r.PublishedAt.After(limit) {
			fa.items[r.Key] = r
		}
	}
	return nil
}

func (fa *FileArchive) Record(ctx context.Context, r Record) error {
	if r.Key == "" {
		return fmt.Errorf("record without key")
	}
	if r.PublishedAt.IsZero() {
		r.PublishedAt = fa.now()
	}

	fa.mu.Lock()
	if prev, found := fa.items[r.Key]; found && prev.Success && !r.Success {
		fa.mu.Unlock()
		return nil
	}
	fa.items[r.Key] = r
	fa.mu.Unlock()

	return fa.save()
}

func (fa *FileArchive) WasPublished(ctx context.Context, key string) (bool, error) {
	fa.mu.RLock()
	defer fa.mu.RUnlock()

	r, found := fa.items[key]
	if !found || !r.Success {
		return false, nil
	}
	return r.PublishedAt.After(cutoff(fa.now(), fa.ttl)), nil
}

func (fa *FileArchive) Cleanup(ctx context.Context) (int, error) {
	fa.mu.Lock()
	limit := cutoff(fa.now(), fa.ttl)
	removed := 0
	for key, r := range fa.items {
		if !r.PublishedAt.After(limit) {
			delete(fa.items, key)
			removed++
		}
	}
	fa.mu.Unlock()

	if removed == 0 {
		return 0, nil
	}
	return removed, fa.save()
}

func (fa *FileArchive) Close() error { return nil }

// save writes through a temp file so a crash never leaves half a file.
func (fa *FileArchive) save() error {
	fa.mu.RLock()
	records := make([]Record, 0, len(fa.items))
	for _, r := range fa.items {
		records = append(records, r)
	}
	fa.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].PublishedAt.Before(records[j].PublishedAt) })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal archive: %w", err)
	}

	if dir := filepath.Dir(fa.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create archive dir: %w", err)
		}
	}
	tmp := fa.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write archive file: %w", err)
	}
	if err := os.Rename(tmp, fa.filePath); err != nil {
		return fmt.Errorf("failed to replace archive file: %w", err)
	}
	return nil
}

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const fileTimeLayout = "20060102-150405.000000000"

// FileSink stores one JSON file per entry under baseDir.
type FileSink struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileSink creates a file-based sink rooted at baseDir.
func NewFileSink(baseDir string) *FileSink {
	return &FileSink{baseDir: baseDir}
}

// DefaultDir returns the default audit directory.
func DefaultDir() string {
	if dir := os.Getenv("PTEROKEYS_AUDIT_DIR"); dir != "" {
		return dir
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "pterokeys", "audit")
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "pterokeys", "audit")
	}

	return filepath.Join(os.TempDir(), "pterokeys", "audit")
}

// Dir returns the directory entries are written to.
func (s *FileSink) Dir() string {
	return s.baseDir
}

// Append writes entry to its own file.
func (s *FileSink) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.baseDir, 0700); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	filename := filepath.Join(s.baseDir, entryFilename(entry))
	// O_EXCL so two entries never overwrite each other.
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create audit file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write audit file: %w", err)
	}
	return f.Close()
}

// List reads entries matching filter, newest first.
func (s *FileSink) List(_ context.Context, filter Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read audit directory: %w", err)
	}

	entries := make([]Entry, 0, len(files))
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.baseDir, file.Name()))
		if err != nil {
			continue // Skip unreadable files
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue // Skip invalid JSON files
		}

		if filter.Matches(entry) {
			entries = append(entries, entry)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}

	return entries, nil
}

// Prune removes entries older than olderThan and returns how many were removed.
func (s *FileSink) Prune(olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read audit directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || filepath.Ext(name) != ".json" || len(name) < len(fileTimeLayout) {
			continue
		}

		ts, err := time.Parse(fileTimeLayout, name[:len(fileTimeLayout)])
		if err != nil || !ts.Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.baseDir, name)); err != nil {
			return removed, fmt.Errorf("failed to remove audit file %s: %w", name, err)
		}
		removed++
	}

	return removed, nil
}

func entryFilename(e Entry) string {
	return fmt.Sprintf("%s-%s.json", e.Timestamp.UTC().Format(fileTimeLayout), sanitizeFilename(e.ID))
}

// sanitizeFilename replaces characters that might be problematic in filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "-",
		"<", "-",
		">", "-",
		"|", "-",
		" ", "_",
	)
	return replacer.Replace(name)
}

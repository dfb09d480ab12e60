// Package state persists batch reports to the filesystem.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/smileynet/qrcard/internal/batch"
)

// Compile-time check: FileStore satisfies batch.ReportStore.
var _ batch.ReportStore = (*FileStore)(nil)

// ErrInvalidID indicates a run ID is empty or contains path traversal components.
var ErrInvalidID = errors.New("state: invalid run ID")

const reportExt = ".json"

// FileStore persists batch reports as JSON files under a base directory.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a FileStore that saves reports under baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// Save writes the report to a JSON file named by its run ID.
func (s *FileStore) Save(r batch.Report) error {
	p, err := s.path(r.RunID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("state: creating directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshaling: %w", err)
	}

	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("state: writing %s: %w", p, err)
	}
	return nil
}

// Load reads the report for the given run ID.
// Returns (report, true, nil) if found, (zero, false, nil) if not found.
func (s *FileStore) Load(id string) (batch.Report, bool, error) {
	p, err := s.path(id)
	if err != nil {
		return batch.Report{}, false, err
	}
	return load(p)
}

// List returns every stored report, most recently finished first.
// A missing base directory yields an empty list.
func (s *FileStore) List() ([]batch.Report, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("state: listing %s: %w", s.baseDir, err)
	}

	var reports []batch.Report
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), reportExt) {
			continue
		}
		r, found, err := load(filepath.Join(s.baseDir, e.Name()))
		if err != nil {
			return nil, err
		}
		if found {
			reports = append(reports, r)
		}
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].FinishedAt.After(reports[j].FinishedAt)
	})
	return reports, nil
}

// Latest returns the most recently finished report.
// Returns (zero, false, nil) when the store is empty.
func (s *FileStore) Latest() (batch.Report, bool, error) {
	reports, err := s.List()
	if err != nil || len(reports) == 0 {
		return batch.Report{}, false, err
	}
	return reports[0], true, nil
}

func load(p string) (batch.Report, bool, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return batch.Report{}, false, nil
		}
		return batch.Report{}, false, fmt.Errorf("state: reading %s: %w", p, err)
	}

	var r batch.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return batch.Report{}, false, fmt.Errorf("state: parsing %s: %w", p, err)
	}
	return r, true, nil
}

// path returns the filesystem path for a report file.
// It rejects IDs that are empty, dot-segments, or contain path separators.
func (s *FileStore) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || id != filepath.Base(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.baseDir, id+reportExt), nil
}

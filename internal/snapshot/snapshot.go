// Package snapshot persists the Core's bounded local caches across restarts
// on the same device. Snapshots are gzip-compressed JSON files in a state
// directory; a small number of rotated files is kept so the storage-cleanup
// remediation has something meaningful to evict.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/meridianapps/resilience-core/internal/model"
)

const (
	filePrefix = "telemetry-"
	fileSuffix = ".json.gz"

	// keepFiles bounds how many rotated snapshots stay on disk.
	keepFiles = 5
)

// State is the persisted shape of the local caches.
type State struct {
	SavedAt       time.Time            `json:"saved_at"`
	Entries       []model.LogEntry     `json:"entries"`
	Interventions []model.Intervention `json:"interventions"`
}

// Store writes and reads snapshot files under a single state directory.
type Store struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates the state directory if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Save writes a new snapshot file and prunes rotated files beyond the keep
// limit.
func (s *Store) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := fmt.Sprintf("%s%d%s", filePrefix, time.Now().UnixNano(), fileSuffix)
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	zw := gzip.NewWriter(f)
	if err := json.NewEncoder(zw).Encode(state); err != nil {
		zw.Close()
		f.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	s.pruneLocked()
	return nil
}

// Load reads the most recent snapshot. A missing or unreadable snapshot is
// reported as an empty state with ok=false, never an error the caller must
// handle.
func (s *Store) Load() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.listLocked()
	if len(files) == 0 {
		return State{}, false
	}
	path := filepath.Join(s.dir, files[len(files)-1])

	f, err := os.Open(path)
	if err != nil {
		s.logger.Warn("failed to open snapshot", "path", path, "error", err)
		return State{}, false
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		s.logger.Warn("failed to read snapshot", "path", path, "error", err)
		return State{}, false
	}
	defer zr.Close()

	var state State
	if err := json.NewDecoder(zr).Decode(&state); err != nil {
		s.logger.Warn("failed to decode snapshot", "path", path, "error", err)
		return State{}, false
	}
	return state, true
}

// EvictOldest removes the oldest snapshot file. Calling it when the state
// directory is empty is a no-op.
func (s *Store) EvictOldest() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.listLocked()
	if len(files) == 0 {
		return nil
	}
	path := filepath.Join(s.dir, files[0])
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to evict snapshot: %w", err)
	}
	s.logger.Info("evicted oldest snapshot", "path", path)
	return nil
}

// Count reports how many snapshot files are on disk.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listLocked())
}

// listLocked returns snapshot file names sorted oldest first. Names embed a
// nanosecond timestamp so lexical order is chronological order.
func (s *Store) listLocked() []string {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, de := range dirEntries {
		name := de.Name()
		if !de.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files
}

func (s *Store) pruneLocked() {
	files := s.listLocked()
	for len(files) > keepFiles {
		path := filepath.Join(s.dir, files[0])
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to prune snapshot", "path", path, "error", err)
			return
		}
		files = files[1:]
	}
}

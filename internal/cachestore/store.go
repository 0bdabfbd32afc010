package cachestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"kitsusync/internal/logging"
	"kitsusync/internal/services"
)

const entrySuffix = ".json"

// writeStripes bounds the number of per-id write locks. Writers to the same
// id hash to the same stripe and serialize; distinct ids usually proceed in
// parallel.
const writeStripes = 32

// RawRecord is one cached API response: the verbatim payload plus the moment
// it was retrieved. Immutable once stored; refreshed only by full overwrite.
type RawRecord struct {
	EntityID    string          `json:"entity_id"`
	RetrievedAt time.Time       `json:"retrieved_at"`
	Payload     json.RawMessage `json:"payload"`
}

// Store is an on-disk cache of raw API responses, one JSON document per
// entity id. The directory itself is the index: entry files are addressable,
// enumerable, and individually removable by an operator.
type Store struct {
	dir    string
	logger *slog.Logger
	locks  [writeStripes]sync.Mutex
}

// New opens (creating if needed) the cache directory at dir.
func New(dir string, logger *slog.Logger) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("cache directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "cachestore"),
	}, nil
}

// Dir returns the cache directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Has reports whether an entry exists for the given id.
func (s *Store) Has(id string) bool {
	path, err := s.entryPath(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Read returns the stored record for id. Absent entries fail with the
// not-found marker.
func (s *Store) Read(id string) (RawRecord, error) {
	path, err := s.entryPath(id)
	if err != nil {
		return RawRecord{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return RawRecord{}, services.Wrap(services.ErrNotFound, "cachestore", "read", fmt.Sprintf("no entry for id %s", id), nil)
		}
		return RawRecord{}, fmt.Errorf("read cache entry: %w", err)
	}

	var record RawRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return RawRecord{}, services.Wrap(services.ErrParse, "cachestore", "read", fmt.Sprintf("corrupt entry for id %s", id), err)
	}
	return record, nil
}

// Write stores payload for id, overwriting any prior entry. Rewriting
// identical bytes is observably a no-op; same-id writers are serialized,
// distinct ids never touch each other's files.
func (s *Store) Write(id string, payload json.RawMessage, retrievedAt time.Time) error {
	path, err := s.entryPath(id)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return services.Wrap(services.ErrValidation, "cachestore", "write", "payload must not be empty", nil)
	}
	if retrievedAt.IsZero() {
		retrievedAt = time.Now().UTC()
	}

	record := RawRecord{
		EntityID:    strings.TrimSpace(id),
		RetrievedAt: retrievedAt.UTC(),
		Payload:     payload,
	}
	// Pretty-printed so operators can inspect entries directly.
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	lock := s.lockFor(record.EntityID)
	lock.Lock()
	defer lock.Unlock()

	if existing, readErr := os.ReadFile(path); readErr == nil {
		var prior RawRecord
		if json.Unmarshal(existing, &prior) == nil && string(prior.Payload) == string(payload) {
			s.logger.Debug("cache entry unchanged", logging.String(logging.FieldEntityID, record.EntityID))
			return nil
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	s.logger.Debug("cached raw record",
		logging.String(logging.FieldEntityID, record.EntityID),
		logging.Int("payload_bytes", len(payload)))
	return nil
}

// Remove deletes the entry for id.
func (s *Store) Remove(id string) error {
	path, err := s.entryPath(id)
	if err != nil {
		return err
	}

	lock := s.lockFor(strings.TrimSpace(id))
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "cachestore", "remove", fmt.Sprintf("no entry for id %s", id), nil)
		}
		return fmt.Errorf("remove cache entry: %w", err)
	}

	s.logger.Debug("removed cache entry", logging.String(logging.FieldEntityID, strings.TrimSpace(id)))
	return nil
}

// List returns all cached ids in ascending order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list cache directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, entrySuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, entrySuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of cached entries.
func (s *Store) Count() (int, error) {
	ids, err := s.List()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Clear removes every entry in the cache.
func (s *Store) Clear() error {
	ids, err := s.List()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.Remove(id); err != nil && !services.IsNotFound(err) {
			return err
		}
	}
	s.logger.Debug("cleared cache", logging.Int("removed", len(ids)))
	return nil
}

func (s *Store) entryPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", services.Wrap(services.ErrValidation, "cachestore", "path", "entity id must not be empty", nil)
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return "", services.Wrap(services.ErrValidation, "cachestore", "path", fmt.Sprintf("invalid entity id %q", id), nil)
	}
	return filepath.Join(s.dir, id+entrySuffix), nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.locks[h.Sum32()%writeStripes]
}

// Package cache provides a content-addressed byte store backed by a
// directory on disk. Each namespace owns a subdirectory, each entry lives
// in its own file under a bucket inside it, and writes are atomic with
// respect to concurrent readers.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when no entry exists for a key.
var ErrNotFound = errors.New("cache: entry not found")

// defaultMemEntries bounds the in-memory LRU front of the store.
const defaultMemEntries = 512

// Store is a durable key -> bytes store rooted at a directory.
// Entries are bucketed into subdirectories by key suffix to bound
// per-directory entry count. A small LRU front serves repeat reads of
// hot keys without touching disk.
type Store struct {
	dir    string
	mem    *lru.Cache[string, []byte]
	logger *zap.Logger
}

// NewStore opens (creating if needed) a byte store at dir.
// An unwritable directory is fatal here, not at first Put.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	// Probe writability up front so misconfiguration surfaces at
	// construction time rather than mid-run.
	probe := filepath.Join(dir, ".probe-"+uuid.NewString())
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return nil, fmt.Errorf("cache dir is not writable: %w", err)
	}
	os.Remove(probe)

	mem, err := lru.New[string, []byte](defaultMemEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &Store{dir: dir, mem: mem, logger: logger}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// path maps a key to its on-disk location: the key's namespace segment
// becomes a subdirectory, and the last two characters of the entry name
// (hex digest tail, uniformly distributed) pick a bucket inside it.
func (s *Store) path(key string) string {
	ns, name, ok := strings.Cut(key, "/")
	if !ok {
		ns, name = "", key
	}
	name = sanitizeSegment(name)

	bucket := "00"
	if len(name) >= 2 {
		bucket = name[len(name)-2:]
	}
	if ns == "" {
		return filepath.Join(s.dir, bucket, name)
	}
	return filepath.Join(s.dir, sanitizeSegment(ns), bucket, name)
}

// Get returns the bytes stored under key, or ErrNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	if data, ok := s.mem.Get(key); ok {
		return data, nil
	}

	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	s.mem.Add(key, data)
	return data, nil
}

// Put stores data under key. The write goes to a temporary file in the
// same bucket and is renamed into place, so a concurrent reader of the
// same key sees either the old state or the complete new value.
func (s *Store) Put(key string, data []byte) error {
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create cache bucket: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(dst), ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}

	s.mem.Add(key, data)
	return nil
}

// Exists reports whether an entry is present for key.
func (s *Store) Exists(key string) bool {
	if s.mem.Contains(key) {
		return true
	}
	_, err := os.Stat(s.path(key))
	return err == nil
}

// Delete removes the entry for key. Deleting a missing key is a no-op.
func (s *Store) Delete(key string) error {
	s.mem.Remove(key)
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// DeleteNamespace removes every entry belonging to namespace, leaving
// other namespaces untouched. Each namespace owns its own directory, so
// this is a single removal regardless of entry count.
func (s *Store) DeleteNamespace(namespace string) error {
	s.mem.Purge()

	if err := os.RemoveAll(filepath.Join(s.dir, namespaceDir(namespace))); err != nil {
		return fmt.Errorf("failed to clear namespace %q: %w", namespace, err)
	}
	s.logger.Info("cleared cache namespace", zap.String("namespace", namespace))
	return nil
}

// ABOUTME: JSON document implementation of TermStore
// ABOUTME: Keeps the registry in memory and rewrites one file atomically after each mutation

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/2389/limimin/internal/stamp"
)

// JSONStore implements TermStore on top of a single JSON document:
//
//	{ "<community>": { "<term>": "Stamp_026_Icon.png" } }
//
// All mutations are serialized by mu and written with write-temp, fsync, rename.
type JSONStore struct {
	mu     sync.RWMutex
	path   string
	terms  Registry
	logger *slog.Logger
}

// NewJSONStore loads the document at path. A missing file yields an empty
// registry; the file is created on the first mutation.
func NewJSONStore(path string) (*JSONStore, error) {
	logger := slog.Default().With("component", "store", "driver", "json")

	s := &JSONStore{
		path:   path,
		logger: logger,
	}

	reg, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	s.terms = reg

	logger.Info("JSON store loaded", "path", path, "communities", len(reg))
	return s, nil
}

// readDocument parses the registry file. Missing or empty files are an empty registry.
func readDocument(path string) (Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Registry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading terms file: %w", err)
	}
	if len(data) == 0 {
		return Registry{}, nil
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parsing terms file %s: %w", path, err)
	}
	if reg == nil {
		reg = Registry{}
	}
	return reg, nil
}

// Load returns a copy of the in-memory registry.
func (s *JSONStore) Load(ctx context.Context) (Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terms.Clone(), nil
}

// AddTerm inserts term and persists the full document.
func (s *JSONStore) AddTerm(ctx context.Context, community, term string, id int) error {
	if err := validateAdd(term, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	terms, ok := s.terms[community]
	if _, exists := terms[term]; exists {
		return ErrTermExists
	}
	if !ok {
		terms = make(Terms)
		s.terms[community] = terms
	}
	terms[term] = stamp.FileName(id)

	if err := s.saveLocked(); err != nil {
		// Keep memory in step with what is on disk.
		delete(terms, term)
		if !ok {
			delete(s.terms, community)
		}
		return err
	}

	s.logger.Debug("added term", "community", community, "term", term, "id", id)
	return nil
}

// DeleteTerm removes term and persists the full document.
func (s *JSONStore) DeleteTerm(ctx context.Context, community, term string) error {
	if !stamp.ValidTerm(term) {
		return fmt.Errorf("%w: %q", ErrInvalidTerm, term)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	terms := s.terms[community]
	ref, ok := terms[term]
	if !ok {
		return ErrNotFound
	}
	delete(terms, term)

	if err := s.saveLocked(); err != nil {
		terms[term] = ref
		return err
	}

	s.logger.Debug("deleted term", "community", community, "term", term)
	return nil
}

// TermExists reports whether community has term registered.
func (s *JSONStore) TermExists(ctx context.Context, community, term string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.terms[community][term]
	return ok, nil
}

// ListTerms returns the sorted terms of community.
func (s *JSONStore) ListTerms(ctx context.Context, community string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.terms[community].sortedKeys(), nil
}

// ResolveStampReference returns the stored file name for term.
func (s *JSONStore) ResolveStampReference(ctx context.Context, community, term string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.terms[community][term]
	if !ok {
		return "", ErrNotFound
	}
	return ref, nil
}

// Close is a no-op; every mutation is already on disk.
func (s *JSONStore) Close() error {
	return nil
}

// saveLocked writes the registry. Must be called with mu held.
func (s *JSONStore) saveLocked() error {
	data, err := json.MarshalIndent(s.terms, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encoding: %v", ErrPersist, err)
	}
	if err := WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// EnsureDocument creates an empty registry document at path if none exists.
func EnsureDocument(path string) (created bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking terms file: %w", err)
	}

	if err := WriteFileAtomic(path, []byte("{}"), 0o644); err != nil {
		return false, fmt.Errorf("creating terms file: %w", err)
	}
	return true, nil
}

// WriteFileAtomic writes data to a temp file in the same directory, fsyncs it,
// and renames it over path. Readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	success = true
	return nil
}

var _ TermStore = (*JSONStore)(nil)

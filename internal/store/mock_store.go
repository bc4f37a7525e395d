// ABOUTME: Mock TermStore implementation for testing
// ABOUTME: Allows tests to run without touching the filesystem

package store

import (
	"context"
	"sync"

	"github.com/2389/limimin/internal/stamp"
)

// MockStore is an in-memory TermStore implementation for testing.
// Set PersistErr to make every mutation fail as if the disk write failed.
type MockStore struct {
	mu         sync.RWMutex
	terms      Registry
	PersistErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		terms: Registry{},
	}
}

// Load returns a copy of the registry.
func (m *MockStore) Load(ctx context.Context) (Registry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.terms.Clone(), nil
}

// AddTerm stores a new term.
func (m *MockStore) AddTerm(ctx context.Context, community, term string, id int) error {
	if err := validateAdd(term, id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.terms[community][term]; ok {
		return ErrTermExists
	}
	if m.PersistErr != nil {
		return m.PersistErr
	}
	if m.terms[community] == nil {
		m.terms[community] = make(Terms)
	}
	m.terms[community][term] = stamp.FileName(id)
	return nil
}

// DeleteTerm removes a term.
func (m *MockStore) DeleteTerm(ctx context.Context, community, term string) error {
	if !stamp.ValidTerm(term) {
		return ErrInvalidTerm
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.terms[community][term]; !ok {
		return ErrNotFound
	}
	if m.PersistErr != nil {
		return m.PersistErr
	}
	delete(m.terms[community], term)
	return nil
}

// TermExists reports whether the term is stored.
func (m *MockStore) TermExists(ctx context.Context, community, term string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.terms[community][term]
	return ok, nil
}

// ListTerms returns sorted terms.
func (m *MockStore) ListTerms(ctx context.Context, community string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.terms[community].sortedKeys(), nil
}

// ResolveStampReference returns the stamp file name for term.
func (m *MockStore) ResolveStampReference(ctx context.Context, community, term string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.terms[community][term]
	if !ok {
		return "", ErrNotFound
	}
	return ref, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements TermStore
var _ TermStore = (*MockStore)(nil)

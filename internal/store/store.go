// ABOUTME: TermStore interface and registry types for limimin persistence
// ABOUTME: Defines the per-community term -> stamp mapping and its error taxonomy

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/2389/limimin/internal/stamp"
)

// ErrNotFound is returned when a term is not registered for a community
var ErrNotFound = errors.New("term not found")

// ErrTermExists is returned when adding a term that is already registered
var ErrTermExists = errors.New("term already in use")

// ErrInvalidTerm is returned when a term is not a non-empty alphanumeric string
var ErrInvalidTerm = errors.New("invalid term")

// ErrInvalidID is returned when a stamp id is outside the catalog range
var ErrInvalidID = errors.New("invalid stamp id")

// ErrPersist wraps failures to write the registry to durable storage
var ErrPersist = errors.New("persisting terms")

// Terms maps a term to its stamp reference (canonical file name)
type Terms map[string]string

// Registry maps a community identifier to that community's terms
type Registry map[string]Terms

// Clone returns a deep copy of the registry.
func (r Registry) Clone() Registry {
	out := make(Registry, len(r))
	for community, terms := range r {
		cp := make(Terms, len(terms))
		for term, ref := range terms {
			cp[term] = ref
		}
		out[community] = cp
	}
	return out
}

// sortedKeys returns the terms in lexicographic order, never nil.
func (t Terms) sortedKeys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TermStore defines the interface for per-community term persistence.
// Every mutation is validated and persisted before it returns.
type TermStore interface {
	// Load returns a snapshot of every community's terms.
	Load(ctx context.Context) (Registry, error)

	// AddTerm maps term to the stamp with the given id.
	// Returns ErrInvalidID, ErrInvalidTerm or ErrTermExists without mutating.
	AddTerm(ctx context.Context, community, term string, id int) error

	// DeleteTerm removes term. Returns ErrInvalidTerm or ErrNotFound.
	DeleteTerm(ctx context.Context, community, term string) error

	TermExists(ctx context.Context, community, term string) (bool, error)

	// ListTerms returns the community's terms sorted lexicographically.
	// The result is empty, not nil, when the community has none.
	ListTerms(ctx context.Context, community string) ([]string, error)

	// ResolveStampReference returns the stamp file name for term, or ErrNotFound.
	ResolveStampReference(ctx context.Context, community, term string) (string, error)

	// Close releases any resources held by the store
	Close() error
}

// validateAdd runs the add preconditions in the order the command surface reports them.
func validateAdd(term string, id int) error {
	if !stamp.ValidID(id) {
		return fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	if !stamp.ValidTerm(term) {
		return fmt.Errorf("%w: %q", ErrInvalidTerm, term)
	}
	return nil
}

// Open creates a TermStore for the named driver ("json" or "sqlite").
func Open(driver, path string) (TermStore, error) {
	switch driver {
	case "", "json":
		return NewJSONStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

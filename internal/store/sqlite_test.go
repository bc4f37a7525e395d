// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers file creation, reopen persistence, and registry import

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.AddTerm(ctx, "room", "hello", 26))

	exists, err := store.TermExists(ctx, "room", "hello")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "terms.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.AddTerm(ctx, "room", "hello", 26))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	ref, err := reopened.ResolveStampReference(ctx, "room", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Stamp_026_Icon.png", ref)
}

func TestSQLiteStore_ImportRegistry(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "terms.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.AddTerm(ctx, "room1", "hello", 30))

	n, err := store.ImportRegistry(ctx, Registry{
		"room1": {
			"hello": "Stamp_026_Icon.png", // already present, kept as-is
			"bye":   "Stamp_027_Icon.png",
			"bad!":  "Stamp_028_Icon.png", // invalid term
		},
		"room2": {
			"odd": "not-a-stamp.png", // invalid reference
			"ok":  "Stamp_039_Icon.png",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	reg, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Registry{
		"room1": {"hello": "Stamp_030_Icon.png", "bye": "Stamp_027_Icon.png"},
		"room2": {"ok": "Stamp_039_Icon.png"},
	}, reg)
}

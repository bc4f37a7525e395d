// ABOUTME: SQLite implementation of TermStore using modernc.org/sqlite
// ABOUTME: One row per (community, term) with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/limimin/internal/stamp"
)

// SQLiteStore implements TermStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store", "driver", "sqlite")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS terms (
			community  TEXT NOT NULL,
			term       TEXT NOT NULL,
			stamp      TEXT NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (community, term)
		);

		CREATE INDEX IF NOT EXISTS idx_terms_community ON terms(community);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Load reads every row into a registry.
func (s *SQLiteStore) Load(ctx context.Context) (Registry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT community, term, stamp FROM terms`)
	if err != nil {
		return nil, fmt.Errorf("querying terms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	reg := Registry{}
	for rows.Next() {
		var community, term, ref string
		if err := rows.Scan(&community, &term, &ref); err != nil {
			return nil, fmt.Errorf("scanning term: %w", err)
		}
		terms, ok := reg[community]
		if !ok {
			terms = make(Terms)
			reg[community] = terms
		}
		terms[term] = ref
	}
	return reg, rows.Err()
}

// AddTerm inserts a term row. The primary key rejects duplicates.
func (s *SQLiteStore) AddTerm(ctx context.Context, community, term string, id int) error {
	if err := validateAdd(term, id); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO terms (community, term, stamp, created_at)
		VALUES (?, ?, ?, ?)
	`, community, term, stamp.FileName(id), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrTermExists
		}
		return fmt.Errorf("%w: inserting term: %v", ErrPersist, err)
	}

	s.logger.Debug("added term", "community", community, "term", term, "id", id)
	return nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// DeleteTerm deletes a term row.
func (s *SQLiteStore) DeleteTerm(ctx context.Context, community, term string) error {
	if !stamp.ValidTerm(term) {
		return fmt.Errorf("%w: %q", ErrInvalidTerm, term)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM terms WHERE community = ? AND term = ?`, community, term)
	if err != nil {
		return fmt.Errorf("%w: deleting term: %v", ErrPersist, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted term", "community", community, "term", term)
	return nil
}

// TermExists reports whether a row exists for (community, term).
func (s *SQLiteStore) TermExists(ctx context.Context, community, term string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM terms WHERE community = ? AND term = ?
	`, community, term).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying term: %w", err)
	}
	return true, nil
}

// ListTerms lists the community's terms in byte order, matching sort.Strings.
func (s *SQLiteStore) ListTerms(ctx context.Context, community string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT term FROM terms WHERE community = ?
		ORDER BY term COLLATE BINARY ASC
	`, community)
	if err != nil {
		return nil, fmt.Errorf("listing terms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	terms := []string{}
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("scanning term: %w", err)
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}

// ResolveStampReference returns the stamp file name stored for term.
func (s *SQLiteStore) ResolveStampReference(ctx context.Context, community, term string) (string, error) {
	var ref string
	err := s.db.QueryRowContext(ctx, `
		SELECT stamp FROM terms WHERE community = ? AND term = ?
	`, community, term).Scan(&ref)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying term: %w", err)
	}
	return ref, nil
}

// ImportRegistry copies every entry of reg into the database in one transaction.
// Entries already present are left untouched; entries whose stamp reference is
// not canonical are skipped. Returns the number of rows inserted.
func (s *SQLiteStore) ImportRegistry(ctx context.Context, reg Registry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for community, terms := range reg {
		for term, ref := range terms {
			if _, ok := stamp.ParseFileName(ref); !ok || !stamp.ValidTerm(term) {
				s.logger.Warn("skipping invalid registry entry", "community", community, "term", term, "stamp", ref)
				continue
			}
			result, err := tx.ExecContext(ctx, `
				INSERT INTO terms (community, term, stamp, created_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(community, term) DO NOTHING
			`, community, term, ref, now)
			if err != nil {
				return 0, fmt.Errorf("importing %s/%s: %w", community, term, err)
			}
			n, _ := result.RowsAffected()
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	s.logger.Info("imported registry", "rows", inserted)
	return inserted, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

var _ TermStore = (*SQLiteStore)(nil)

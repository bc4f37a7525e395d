// Package store persists the per-community term registry.
//
// A term is a short alphanumeric word a room registers for a stamp; the
// registry maps community (Matrix room ID) to term to stamp file name:
//
//	{ "!room:example.org": { "hello": "Stamp_026_Icon.png" } }
//
// # Backends
//
//   - JSONStore keeps the whole registry in memory and rewrites terms.json
//     atomically after every change. A failed write rolls the change back.
//   - SQLiteStore keeps one row per term in terms.db (modernc.org/sqlite, WAL).
//   - MockStore is an in-memory implementation for tests.
//
// All three implement TermStore and report failures with the sentinel errors
// ErrInvalidID, ErrInvalidTerm, ErrTermExists, ErrNotFound and ErrPersist,
// which callers match with errors.Is.
package store

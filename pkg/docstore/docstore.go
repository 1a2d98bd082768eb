// Package docstore implements the Document Store (spec §4.3): the
// id-addressable record of each document's original payload and its
// persisted int8 embedding. It is backed by SQLite through
// modernc.org/sqlite, the pure-Go driver the teacher uses, with the
// same WAL connection-string tuning as the teacher's
// pkg/core/store_init.go so a single-writer/multi-reader Facade never
// blocks readers behind a writer's transaction.
package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one document's payload plus its persisted int8 embedding,
// the two halves spec §4.3 requires to be co-located and co-deleted.
type Record struct {
	ID       int64
	Payload  []byte
	EmbInt8  []int8
	UpdatedAt time.Time
}

// Store is the SQLite-backed Document Store. The zero value is not
// usable; construct with Open.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists. The DSN tuning mirrors the teacher's:
// WAL journaling for reader/writer concurrency, NORMAL synchronous for
// a good safety/speed balance, a busy timeout so concurrent opens don't
// fail outright, and a modest page cache.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-2000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(2 * time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("docstore: enable foreign keys: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS docs (
		id         INTEGER PRIMARY KEY,
		payload    BLOB NOT NULL,
		emb_int8   BLOB NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("docstore: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or overwrites the record for id. Callers use this for
// both fresh inserts and the reinsert half of an upsert (spec §4.4.2);
// the Store itself has no update-vs-insert distinction.
func (s *Store) Put(ctx context.Context, id int64, payload []byte, embInt8 []int8) error {
	enc := encodeInt8(embInt8)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO docs (id, payload, emb_int8, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, emb_int8 = excluded.emb_int8, updated_at = excluded.updated_at`,
		id, payload, enc,
	)
	if err != nil {
		return fmt.Errorf("docstore: put %d: %w", id, err)
	}
	return nil
}

// Get retrieves the record for id. err is sql.ErrNoRows if id is not
// present; callers compare with errors.Is.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	var rec Record
	var enc []byte
	rec.ID = id
	err := s.db.QueryRowContext(ctx, `SELECT payload, emb_int8, updated_at FROM docs WHERE id = ?`, id).
		Scan(&rec.Payload, &enc, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.EmbInt8 = decodeInt8(enc)
	return rec, nil
}

// Contains reports whether id is present, without fetching the payload.
func (s *Store) Contains(ctx context.Context, id int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM docs WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("docstore: contains %d: %w", id, err)
	}
	return true, nil
}

// Delete removes the record for id. It does not error if id is absent;
// the Facade's RemoveDoc checks presence itself and reports NotFound.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM docs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("docstore: delete %d: %w", id, err)
	}
	return nil
}

// Count returns the number of records currently stored.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM docs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("docstore: count: %w", err)
	}
	return n, nil
}

// AllIDs returns every id currently stored, for crash-recovery
// reconciliation against the Binary Index (spec §4.4.1, §7).
func (s *Store) AllIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM docs`)
	if err != nil {
		return nil, fmt.Errorf("docstore: all ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("docstore: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// encodeInt8 stores a signed int8 slice as a plain byte slice (the two
// types share a representation; int8 just reinterprets the sign bit).
func encodeInt8(v []int8) []byte {
	out := make([]byte, len(v))
	for i, x := range v {
		out[i] = byte(x)
	}
	return out
}

func decodeInt8(b []byte) []int8 {
	out := make([]int8, len(b))
	for i, x := range b {
		out[i] = int8(x)
	}
	return out
}

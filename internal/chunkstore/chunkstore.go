// Package chunkstore is an optional on-disk cache of compiled chunks, keyed
// by a hash of the source text that produced them, so the CLI's `dasm`/
// `run` path can skip re-analyzing a file that hasn't changed since the
// last run. Backed by modernc.org/sqlite + database/sql, grounded on the
// teacher's internal/evaluator/builtins_sql.go SqlDB wrapper (same
// sql.Open("sqlite", dsn) driver pairing), storing Chunk.Serialize's own
// binary layout as a BLOB rather than reinventing a format.
package chunkstore

import (
	"database/sql"
	"fmt"
	"hash/fnv"

	_ "modernc.org/sqlite"

	"github.com/funvibe/funxylisp/internal/heap"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// Store is a handle to one sqlite-backed chunk cache.
type Store struct {
	db *sql.DB
}

// Open creates (if necessary) and opens the cache database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: open %s: %w", path, err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			source_hash TEXT PRIMARY KEY,
			source_name TEXT NOT NULL,
			code BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("chunkstore: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the cached chunk for the given source hash, if any,
// deserializing it into h. ok is false on a cache miss, not an error —
// a miss just means the caller should compile src and call Put.
func (s *Store) Lookup(sourceHash string, h *heap.Heap) (*vmpkg.Chunk, bool, error) {
	var code []byte
	err := s.db.QueryRow(`SELECT code FROM chunks WHERE source_hash = ?`, sourceHash).Scan(&code)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("chunkstore: lookup %s: %w", sourceHash, err)
	}
	chunk, err := vmpkg.Deserialize(code, h)
	if err != nil {
		return nil, false, fmt.Errorf("chunkstore: deserialize %s: %w", sourceHash, err)
	}
	return chunk, true, nil
}

// Put serializes chunk (whose boxed constants must belong to h) and stores
// it under sourceHash, overwriting any previous entry for the same hash.
func (s *Store) Put(sourceHash, sourceName string, chunk *vmpkg.Chunk, h *heap.Heap) error {
	code, err := chunk.Serialize(h)
	if err != nil {
		return fmt.Errorf("chunkstore: serialize %s: %w", sourceName, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO chunks (source_hash, source_name, code) VALUES (?, ?, ?)
		ON CONFLICT(source_hash) DO UPDATE SET code = excluded.code, source_name = excluded.source_name
	`, sourceHash, sourceName, code)
	if err != nil {
		return fmt.Errorf("chunkstore: put %s: %w", sourceName, err)
	}
	return nil
}

// HashSource returns the cache key for a block of source text: a plain
// FNV-1a hex digest, stable across runs and cheap enough to compute on
// every CLI invocation before deciding whether to hit the cache at all.
func HashSource(src string) string {
	h := fnv.New64a()
	h.Write([]byte(src))
	return fmt.Sprintf("%016x", h.Sum64())
}

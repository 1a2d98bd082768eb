package bvdb

import (
	"sync"

	"github.com/cohere-ai/BinaryVectorDB/pkg/binindex"
	"github.com/cohere-ai/BinaryVectorDB/pkg/docstore"
)

// DB is the Database Facade (spec §4.4): it owns the Binary Index, the
// Document Store, and the Oracle, and is the sole writer of the
// cross-store invariant between the first two. The zero value is not
// usable; construct with Open.
//
// A *DB is safe for concurrent Search calls from multiple goroutines;
// AddDocuments, RemoveDoc, and Save take an exclusive lease, matching
// the single-writer/multi-reader model of spec §5 and the teacher's
// SQLiteStore.mu usage.
type DB struct {
	dir string
	cfg Config

	mu     sync.RWMutex
	index  *binindex.Index
	docs   *docstore.Store
	oracle Oracle
	logger Logger
	closed bool
}

// ProgressFunc optionally reports add_documents progress: done is the
// count of documents committed so far, total is the overall batch
// size. It is the opaque progress sink of spec §4.4.2.
type ProgressFunc func(done, total int)

// Hit is one ranked search result (spec §4.4.4).
type Hit struct {
	DocID       int64
	ScoreHamming int
	ScoreBinary  float32
	ScoreCosSim  float32
	Doc          []byte
}

// Dim returns the embedding dimension this database was created with.
func (db *DB) Dim() int { return db.cfg.Dim }

// Model returns the embedding model name recorded at creation time.
func (db *DB) Model() string { return db.cfg.Model }

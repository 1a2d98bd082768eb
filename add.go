package bvdb

import (
	"context"
	"fmt"
)

// AddOptions configures AddDocuments (spec §4.4.2).
type AddOptions struct {
	// BatchSize caps texts per Oracle call; 0 uses MaxOracleBatch.
	BatchSize int
	// Save persists the Binary Index once all chunks have committed.
	Save bool
	// Progress, if set, is called after each chunk commits.
	Progress ProgressFunc
}

// ProjectionFunc maps a document payload to the text the Oracle embeds.
// It must return a non-empty string; any error is reported as
// ProjectionTypeError (spec §4.4.2).
type ProjectionFunc func(doc []byte) (string, error)

// AddDocuments implements add_documents (spec §4.4.2): upsert semantics
// (an id already present is removed from both stores before its new
// version is added), batched Oracle calls, and the ordering invariant
// "index add, then store puts" within each chunk so crash recovery
// (reconcile, in open.go) has a well-defined repair to make.
func (db *DB) AddDocuments(ctx context.Context, ids []int64, docs [][]byte, docs2text ProjectionFunc, opts AddOptions) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return newErr("add_documents", KindStorageFailure, ErrStorageFailure, "database is closed")
	}
	if len(ids) != len(docs) {
		return newErr("add_documents", KindLengthMismatch, ErrLengthMismatch,
			fmt.Sprintf("%d ids vs %d docs", len(ids), len(docs)))
	}
	if len(ids) == 0 {
		return nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = MaxOracleBatch
	}

	// Upsert: remove any existing version of each id before reinserting,
	// without persisting between removals (spec §4.4.2).
	for _, id := range ids {
		exists, err := db.docs.Contains(ctx, id)
		if err != nil {
			return wrapErr("add_documents", KindStorageFailure, err)
		}
		if exists {
			if err := db.removeLocked(ctx, id); err != nil {
				return err
			}
		}
	}

	total := len(ids)
	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return newErr("add_documents", KindCancelled, ErrCancelled, err.Error())
		}

		end := start + batchSize
		if end > total {
			end = total
		}
		chunkIDs := ids[start:end]
		chunkDocs := docs[start:end]

		texts := make([]string, len(chunkDocs))
		for i, d := range chunkDocs {
			text, err := docs2text(d)
			if err != nil {
				return wrapErr("add_documents", KindProjectionTypeError, err)
			}
			if text == "" {
				return newErr("add_documents", KindProjectionTypeError, ErrProjectionTypeError, "projection returned empty text")
			}
			texts[i] = text
		}

		vecs, err := db.oracle.Embed(ctx, texts, RoleDocument, []Precision{PrecisionUBinary, PrecisionInt8})
		if err != nil {
			return wrapErr("add_documents", KindOracleFailure, err)
		}
		if len(vecs) != len(chunkIDs) {
			return newErr("add_documents", KindOracleFailure, ErrOracleFailure, "oracle returned the wrong number of vectors")
		}

		ubinaries := make([][]byte, len(vecs))
		for i, v := range vecs {
			ubinaries[i] = v.UBinary
		}
		if err := db.index.Add(chunkIDs, ubinaries); err != nil {
			return wrapErr("add_documents", KindDimensionMismatch, err)
		}
		for i, id := range chunkIDs {
			if err := db.docs.Put(ctx, id, chunkDocs[i], vecs[i].Int8); err != nil {
				return wrapErr("add_documents", KindStorageFailure, err)
			}
		}

		if opts.Progress != nil {
			opts.Progress(end, total)
		}
	}

	if opts.Save {
		return db.saveLocked()
	}
	return nil
}

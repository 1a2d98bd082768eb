package bvdb

import (
	"context"
	"errors"
	"os"

	"github.com/cohere-ai/BinaryVectorDB/pkg/binindex"
	"github.com/cohere-ai/BinaryVectorDB/pkg/docstore"
)

// Open opens the database rooted at dir, creating it if dir is empty,
// per spec §4.4.1. opts.Oracle is required: the embedding provider is
// an external collaborator this package never constructs itself (spec
// §1's out-of-scope list); callers that need the real credential check
// described in spec §6 perform it before calling Open (cmd/bvdbctl does
// this, mapping a missing EMBEDDING_API_KEY to exit code 5).
func Open(ctx context.Context, dir string, opts OpenOptions) (*DB, error) {
	if opts.Oracle == nil {
		return nil, wrapErr("open", KindOracleFailure, errors.New("no Oracle configured"))
	}
	logger := opts.Logger
	if logger == nil {
		logger = NopLogger()
	}

	cfg, created, err := loadOrCreateConfig(dir, opts)
	if err != nil {
		return nil, err
	}

	var index *binindex.Index
	if created {
		index, err = binindex.New(cfg.Dim)
	} else if _, statErr := os.Stat(indexPath(dir)); statErr == nil {
		index, err = binindex.Load(indexPath(dir))
	} else {
		// Config exists but the index file was never written (e.g. a
		// crash between creation and the first save): start empty.
		index, err = binindex.New(cfg.Dim)
	}
	if err != nil {
		return nil, newErr("open", KindCorruptOrForeignDirectory, ErrCorruptOrForeignDirectory, err.Error())
	}

	docs, err := docstore.Open(ctx, docsPath(dir))
	if err != nil {
		return nil, wrapErr("open", KindStorageFailure, err)
	}

	db := &DB{
		dir:    dir,
		cfg:    cfg,
		index:  index,
		docs:   docs,
		oracle: opts.Oracle,
		logger: logger,
	}

	if !created {
		if err := db.reconcile(ctx); err != nil {
			docs.Close()
			return nil, err
		}
	}

	logger.Info("database opened", "dir", dir, "dim", cfg.Dim, "ntotal", index.Len())
	return db, nil
}

// reconcile repairs cross-store drift left by a crash between the
// Binary Index add and the Document Store put of the same
// add_documents chunk (spec §4.4.2, §7): ids present in the index but
// absent from the store are orphaned rows and are dropped from the
// index; ids present in the store but absent from the index are
// treated as soft-deleted and dropped from the store.
func (db *DB) reconcile(ctx context.Context) error {
	storeIDs, err := db.docs.AllIDs(ctx)
	if err != nil {
		return wrapErr("open", KindStorageFailure, err)
	}
	inStore := make(map[int64]bool, len(storeIDs))
	for _, id := range storeIDs {
		inStore[id] = true
	}

	for _, id := range storeIDs {
		if _, err := db.index.Reconstruct(id); errors.Is(err, binindex.ErrNotFound) {
			if err := db.docs.Delete(ctx, id); err != nil {
				return wrapErr("open", KindStorageFailure, err)
			}
			db.logger.Warn("reconciled reverse orphan", "id", id)
		}
	}

	for _, id := range db.index.IDs() {
		if !inStore[id] {
			if err := db.index.Remove(id); err != nil && !errors.Is(err, binindex.ErrNotFound) {
				return wrapErr("open", KindStorageFailure, err)
			}
			db.logger.Warn("reconciled forward orphan", "id", id)
		}
	}
	return nil
}

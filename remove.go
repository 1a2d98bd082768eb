package bvdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/cohere-ai/BinaryVectorDB/pkg/binindex"
)

// RemoveDoc implements remove_doc (spec §4.4.3): NotFound if id is
// absent from the Document Store, otherwise removed from both stores
// and optionally persisted.
func (db *DB) RemoveDoc(ctx context.Context, id int64, save bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return newErr("remove_doc", KindStorageFailure, ErrStorageFailure, "database is closed")
	}
	if err := db.removeLocked(ctx, id); err != nil {
		return err
	}
	if save {
		return db.saveLocked()
	}
	return nil
}

// removeLocked performs the two-store removal assuming db.mu is
// already held for writing. It is shared by RemoveDoc and the upsert
// path in AddDocuments.
func (db *DB) removeLocked(ctx context.Context, id int64) error {
	exists, err := db.docs.Contains(ctx, id)
	if err != nil {
		return wrapErr("remove_doc", KindStorageFailure, err)
	}
	if !exists {
		return newErr("remove_doc", KindNotFound, ErrNotFound, fmt.Sprintf("doc %d", id))
	}
	if err := db.index.Remove(id); err != nil && !errors.Is(err, binindex.ErrNotFound) {
		return wrapErr("remove_doc", KindStorageFailure, err)
	}
	if err := db.docs.Delete(ctx, id); err != nil {
		return wrapErr("remove_doc", KindStorageFailure, err)
	}
	return nil
}

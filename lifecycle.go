package bvdb

// Len implements len() (spec §4.4.5): ntotal from the Binary Index.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.index.Len()
}

// Save persists the Binary Index atomically (spec §4.4.6). The
// Document Store durabilizes on each write already, so there is
// nothing else to flush.
func (db *DB) Save() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.saveLocked()
}

func (db *DB) saveLocked() error {
	if err := db.index.Persist(indexPath(db.dir)); err != nil {
		return wrapErr("save", KindStorageFailure, err)
	}
	return nil
}

// Close releases the Document Store handle. It does not implicitly
// save; callers that want a durable Binary Index call Save first.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	if err := db.docs.Close(); err != nil {
		return wrapErr("close", KindStorageFailure, err)
	}
	return nil
}

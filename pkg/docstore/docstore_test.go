package docstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docs.db")
	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	payload := []byte(`{"text":"hello"}`)
	emb := []int8{-127, 0, 1, 127, -1}

	if err := s.Put(ctx, 1, payload, emb); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(rec.Payload) != string(payload) {
		t.Errorf("Payload = %q, want %q", rec.Payload, payload)
	}
	if len(rec.EmbInt8) != len(emb) {
		t.Fatalf("EmbInt8 len = %d, want %d", len(rec.EmbInt8), len(emb))
	}
	for i := range emb {
		if rec.EmbInt8[i] != emb[i] {
			t.Errorf("EmbInt8[%d] = %d, want %d", i, rec.EmbInt8[i], emb[i])
		}
	}
}

func TestGetMissingReturnsNoRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, 42); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("Get(missing) err = %v, want sql.ErrNoRows", err)
	}
}

func TestPutOverwritesOnDuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, 7, []byte("v1"), []int8{1}); err != nil {
		t.Fatalf("Put v1: %v", err)
	}
	if err := s.Put(ctx, 7, []byte("v2"), []int8{2}); err != nil {
		t.Fatalf("Put v2: %v", err)
	}

	rec, err := s.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(rec.Payload) != "v2" {
		t.Errorf("Payload = %q after overwrite, want %q", rec.Payload, "v2")
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d after overwrite, want 1", n)
	}
}

func TestContainsAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, 3, []byte("x"), []int8{0})

	ok, err := s.Contains(ctx, 3)
	if err != nil || !ok {
		t.Fatalf("Contains(3) = (%v, %v), want (true, nil)", ok, err)
	}

	if err := s.Delete(ctx, 3); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	ok, err = s.Contains(ctx, 3)
	if err != nil || ok {
		t.Fatalf("Contains(3) after delete = (%v, %v), want (false, nil)", ok, err)
	}

	// Deleting an absent id is not an error.
	if err := s.Delete(ctx, 999); err != nil {
		t.Errorf("Delete(absent) = %v, want nil", err)
	}
}

func TestAllIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := map[int64]bool{1: true, 2: true, 5: true}
	for id := range want {
		if err := s.Put(ctx, id, []byte("x"), []int8{0}); err != nil {
			t.Fatalf("Put(%d): %v", id, err)
		}
	}

	ids, err := s.AllIDs(ctx)
	if err != nil {
		t.Fatalf("AllIDs: %v", err)
	}
	if len(ids) != len(want) {
		t.Fatalf("AllIDs returned %d ids, want %d", len(ids), len(want))
	}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("unexpected id %d in AllIDs", id)
		}
	}
}

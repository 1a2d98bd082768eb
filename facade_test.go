package bvdb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// stubOracle is a deterministic Oracle test double (spec §9's rationale
// for modeling the Oracle as an injectable interface): it returns
// precomputed vectors keyed by exact input text, filtered to the
// requested precisions, so tests can assert exact scores.
type stubOracle struct {
	vectors map[string]Vectors
}

func (s *stubOracle) Embed(_ context.Context, texts []string, _ Role, precisions []Precision) ([]Vectors, error) {
	out := make([]Vectors, len(texts))
	for i, text := range texts {
		v, ok := s.vectors[text]
		if !ok {
			return nil, fmt.Errorf("stubOracle: no fixture for %q", text)
		}
		var res Vectors
		for _, p := range precisions {
			switch p {
			case PrecisionFloat:
				res.Float = v.Float
			case PrecisionInt8:
				res.Int8 = v.Int8
			case PrecisionUBinary:
				res.UBinary = v.UBinary
			}
		}
		out[i] = res
	}
	return out, nil
}

func identityProjection(doc []byte) (string, error) { return string(doc), nil }

// unitSigned8 returns an 8-dim unit vector with the given sign pattern,
// so that dot(query, int8) / ||int8|| comes out to exactly 1.0 when
// int8 carries the same sign pattern at equal magnitude per component
// (spec S1's worked cosine-similarity example).
func unitSigned8(negFirst bool) []float32 {
	s := float32(1 / math.Sqrt(8))
	v := make([]float32, 8)
	for i := range v {
		if (i < 4) == negFirst {
			v[i] = -s
		} else {
			v[i] = s
		}
	}
	return v
}

func int8Signed(negFirst bool) []int8 {
	out := make([]int8, 8)
	for i := range out {
		if (i < 4) == negFirst {
			out[i] = -100
		} else {
			out[i] = 100
		}
	}
	return out
}

func newScenarioOracle() *stubOracle {
	return &stubOracle{vectors: map[string]Vectors{
		"alpha": {
			Float:   unitSigned8(true),
			Int8:    int8Signed(true),
			UBinary: []byte{0xF0},
		},
		"beta": {
			Float:   unitSigned8(false),
			Int8:    int8Signed(false),
			UBinary: []byte{0x0F},
		},
		"alpha2": {
			Float:   unitSigned8(true),
			Int8:    int8Signed(true),
			UBinary: []byte{0xF0},
		},
	}}
}

func mustOpen(t *testing.T, dir string, oracle Oracle) *DB {
	t.Helper()
	db, err := Open(context.Background(), dir, OpenOptions{Model: "test-model", Dim: 8, Oracle: oracle})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return db
}

// TestInsertUpdateDeletePersistenceLifecycle walks scenarios S1-S4 from
// spec §8 against one database in sequence, the way the source's own
// add_update_delete example progresses a single handle through the
// same states.
func TestInsertUpdateDeletePersistenceLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	oracle := newScenarioOracle()

	db := mustOpen(t, dir, oracle)

	// S1: insert/search round-trip.
	if err := db.AddDocuments(ctx, []int64{1, 2}, [][]byte{[]byte("alpha"), []byte("beta")}, identityProjection, AddOptions{}); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	hits, err := db.Search(ctx, "alpha", 1, 0, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("len(hits) = %d, want 1", len(hits))
	}
	if hits[0].DocID != 1 {
		t.Errorf("hits[0].DocID = %d, want 1", hits[0].DocID)
	}
	if hits[0].ScoreHamming != 0 {
		t.Errorf("hits[0].ScoreHamming = %d, want 0", hits[0].ScoreHamming)
	}
	if diff := math.Abs(float64(hits[0].ScoreCosSim) - 1.0); diff > 1e-3 {
		t.Errorf("hits[0].ScoreCosSim = %v, want ~1.0", hits[0].ScoreCosSim)
	}

	// S2: update via upsert — id=2 gets "alpha2", whose ubinary equals
	// "alpha"'s.
	if err := db.AddDocuments(ctx, []int64{2}, [][]byte{[]byte("alpha2")}, identityProjection, AddOptions{}); err != nil {
		t.Fatalf("AddDocuments (update): %v", err)
	}
	hits, err = db.Search(ctx, "alpha", 2, 0, 0)
	if err != nil {
		t.Fatalf("Search after update: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	var sawUpdated bool
	for _, h := range hits {
		if h.DocID == 2 {
			sawUpdated = true
			if string(h.Doc) != "alpha2" {
				t.Errorf("id=2 payload = %q, want %q", h.Doc, "alpha2")
			}
		}
	}
	if !sawUpdated {
		t.Fatal("id=2 missing from results after update")
	}

	// S3: delete.
	if err := db.RemoveDoc(ctx, 1, false); err != nil {
		t.Fatalf("RemoveDoc: %v", err)
	}
	if got := db.Len(); got != 1 {
		t.Fatalf("Len() = %d after remove, want 1", got)
	}
	hits, err = db.Search(ctx, "alpha", 3, 0, 0)
	if err != nil {
		t.Fatalf("Search after delete: %v", err)
	}
	if len(hits) != 1 || hits[0].DocID != 2 {
		t.Fatalf("Search after delete = %+v, want exactly one hit with DocID=2", hits)
	}

	// S4: persistence round-trip.
	if err := db.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	beforeClose := hits[0]
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := mustOpen(t, dir, newScenarioOracle())
	defer reopened.Close()

	if got := reopened.Len(); got != 1 {
		t.Fatalf("Len() after reopen = %d, want 1", got)
	}
	hits, err = reopened.Search(ctx, "alpha", 1, 0, 0)
	if err != nil {
		t.Fatalf("Search after reopen: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("len(hits) after reopen = %d, want 1", len(hits))
	}
	if hits[0].DocID != beforeClose.DocID {
		t.Errorf("DocID after reopen = %d, want %d", hits[0].DocID, beforeClose.DocID)
	}
	if hits[0].ScoreCosSim != beforeClose.ScoreCosSim {
		t.Errorf("ScoreCosSim after reopen = %v, want %v", hits[0].ScoreCosSim, beforeClose.ScoreCosSim)
	}
}

// TestSearchOversampleClamping covers S5: k·binary_oversample exceeding
// ntotal must clamp, not error.
func TestSearchOversampleClamping(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	oracle := &stubOracle{vectors: map[string]Vectors{
		"a": {Float: unitSigned8(true), Int8: int8Signed(true), UBinary: []byte{0xF0}},
		"b": {Float: unitSigned8(false), Int8: int8Signed(false), UBinary: []byte{0x0F}},
		"c": {Float: unitSigned8(true), Int8: int8Signed(true), UBinary: []byte{0xF1}},
	}}
	db := mustOpen(t, dir, oracle)
	defer db.Close()

	if err := db.AddDocuments(ctx, []int64{1, 2, 3}, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, identityProjection, AddOptions{}); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	hits, err := db.Search(ctx, "a", 2, 10, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2 (k=2 despite binary_oversample*k=20 > ntotal=3)", len(hits))
	}
}

// TestOpenRejectsForeignDirectory covers S6.
func TestOpenRejectsForeignDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("not a bvdb directory"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Open(context.Background(), dir, OpenOptions{Dim: 8, Oracle: &stubOracle{}})
	if !errors.Is(err, ErrCorruptOrForeignDirectory) {
		t.Fatalf("Open(foreign dir) err = %v, want ErrCorruptOrForeignDirectory", err)
	}
}

// TestSearchEmptyIndex covers the EmptyIndex precondition in spec §4.4.4.
func TestSearchEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	db := mustOpen(t, dir, &stubOracle{vectors: map[string]Vectors{}})
	defer db.Close()

	_, err := db.Search(context.Background(), "anything", 1, 0, 0)
	if !errors.Is(err, ErrEmptyIndex) {
		t.Fatalf("Search on empty index err = %v, want ErrEmptyIndex", err)
	}
}

// TestAddDocumentsLengthMismatch covers the LengthMismatch contract
// violation in spec §4.4.2.
func TestAddDocumentsLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	db := mustOpen(t, dir, &stubOracle{vectors: map[string]Vectors{}})
	defer db.Close()

	err := db.AddDocuments(context.Background(), []int64{1, 2}, [][]byte{[]byte("only one")}, identityProjection, AddOptions{})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("AddDocuments length mismatch err = %v, want ErrLengthMismatch", err)
	}
}

// TestRemoveDocNotFound covers NotFound on remove (spec §4.4.3, §8
// invariant 3's complement).
func TestRemoveDocNotFound(t *testing.T) {
	dir := t.TempDir()
	db := mustOpen(t, dir, &stubOracle{vectors: map[string]Vectors{}})
	defer db.Close()

	err := db.RemoveDoc(context.Background(), 999, false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("RemoveDoc(missing) err = %v, want ErrNotFound", err)
	}
}

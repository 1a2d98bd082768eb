package bvdb

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"

	"github.com/cohere-ai/BinaryVectorDB/internal/bitunpack"
)

// Default oversample factors (spec §4.4.4). Unlike the source this was
// ported from, these are not hardcoded into the search path — a caller
// passing 0 gets the default, but any positive value the caller passes
// is honored exactly (spec §9's first open question, resolved in favor
// of the documented parameters being authoritative).
const (
	DefaultBinaryOversample = 10
	DefaultInt8Oversample   = 3
)

// Search implements search (spec §4.4.4): a three-phase coarse-to-fine
// rescore. Phase I takes a Hamming shortlist from the Binary Index,
// Phase II rescores it by float·unpacked-binary dot product, Phase III
// rescores the survivors by float·int8 cosine using the Document
// Store's persisted embeddings.
func (db *DB) Search(ctx context.Context, queryText string, k int, binaryOversample, int8Oversample int) ([]Hit, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, newErr("search", KindStorageFailure, ErrStorageFailure, "database is closed")
	}
	if db.index.Len() == 0 {
		return nil, newErr("search", KindEmptyIndex, ErrEmptyIndex, "")
	}
	if k <= 0 {
		return nil, nil
	}
	if binaryOversample <= 0 {
		binaryOversample = DefaultBinaryOversample
	}
	if int8Oversample <= 0 {
		int8Oversample = DefaultInt8Oversample
	}

	vecs, err := db.oracle.Embed(ctx, []string{queryText}, RoleQuery, []Precision{PrecisionFloat, PrecisionUBinary})
	if err != nil {
		return nil, wrapErr("search", KindOracleFailure, err)
	}
	if len(vecs) != 1 {
		return nil, newErr("search", KindOracleFailure, ErrOracleFailure, "oracle returned the wrong number of vectors")
	}
	queryFloat := vecs[0].Float
	queryUBinary := vecs[0].UBinary

	// Phase I: Hamming shortlist.
	k1 := k * binaryOversample
	shortlistIDs, shortlistDists, err := db.index.Search(queryUBinary, k1)
	if err != nil {
		return nil, wrapErr("search", KindDimensionMismatch, err)
	}

	// Phase II: binary-rescored by float dot product.
	type binScored struct {
		id      int64
		hamming int
		binary  float32
	}
	binRescored := make([]binScored, 0, len(shortlistIDs))
	for i, id := range shortlistIDs {
		row, err := db.index.Reconstruct(id)
		if err != nil {
			// Raced remove between Phase I and here; drop silently, the
			// same "transient gap" treatment spec §5 prescribes for
			// Phase III.
			continue
		}
		dot := bitunpack.DotFloat(queryFloat, row)
		binRescored = append(binRescored, binScored{id: id, hamming: shortlistDists[i], binary: dot})
	}
	sort.Slice(binRescored, func(i, j int) bool {
		if binRescored[i].binary != binRescored[j].binary {
			return binRescored[i].binary > binRescored[j].binary
		}
		return binRescored[i].id < binRescored[j].id
	})
	k2 := k * int8Oversample
	if k2 > len(binRescored) {
		k2 = len(binRescored)
	}
	binRescored = binRescored[:k2]

	// Phase III: int8 cosine rescore.
	type cosScored struct {
		binScored
		cossim  float32
		payload []byte
	}
	cosRescored := make([]cosScored, 0, len(binRescored))
	for _, c := range binRescored {
		rec, err := db.docs.Get(ctx, c.id)
		if errors.Is(err, sql.ErrNoRows) {
			continue // transient gap: a racing writer removed this id
		}
		if err != nil {
			return nil, wrapErr("search", KindStorageFailure, err)
		}

		var dot, normSq float32
		for i, v := range rec.EmbInt8 {
			fv := float32(v)
			dot += queryFloat[i] * fv
			normSq += fv * fv
		}
		var cossim float32
		if normSq > 0 {
			cossim = dot / float32(math.Sqrt(float64(normSq)))
		}
		cosRescored = append(cosRescored, cosScored{binScored: c, cossim: cossim, payload: rec.Payload})
	}
	sort.Slice(cosRescored, func(i, j int) bool {
		if cosRescored[i].cossim != cosRescored[j].cossim {
			return cosRescored[i].cossim > cosRescored[j].cossim
		}
		return cosRescored[i].id < cosRescored[j].id
	})
	if len(cosRescored) > k {
		cosRescored = cosRescored[:k]
	}

	hits := make([]Hit, len(cosRescored))
	for i, c := range cosRescored {
		hits[i] = Hit{
			DocID:        c.id,
			ScoreHamming: c.hamming,
			ScoreBinary:  c.binary,
			ScoreCosSim:  c.cossim,
			Doc:          c.payload,
		}
	}
	return hits, nil
}

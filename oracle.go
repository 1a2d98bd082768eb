package bvdb

import (
	"context"

	"github.com/cohere-ai/BinaryVectorDB/internal/quant"
)

// Role selects which side of a retrieval pair a batch of texts plays;
// some embedding models produce different vectors for documents vs
// queries (asymmetric embedding).
type Role string

const (
	RoleDocument Role = "document"
	RoleQuery    Role = "query"
)

// Precision names one of the three co-registered vector encodings the
// Oracle can produce for a given text (spec §4.1).
type Precision string

const (
	PrecisionFloat   Precision = "float"
	PrecisionInt8    Precision = "int8"
	PrecisionUBinary Precision = "ubinary"
)

// Vectors holds whichever precisions were requested for one input text.
// Fields for precisions that were not requested are left nil.
type Vectors struct {
	Float   []float32
	Int8    []int8
	UBinary []byte
}

// Oracle is the embedding provider the Facade consumes. It is the only
// component in this module that may block on network I/O; bvdb treats
// it as an abstract collaborator and never implements one against a
// real model itself (spec §2).
//
// Implementations must keep the three precisions sign-consistent (bit i
// of UBinary is 1 iff Float[i] >= 0) and magnitude-consistent (Int8 is a
// linear quantization of Float). The Facade does not verify this; it is
// load-bearing for ranking quality only.
type Oracle interface {
	// Embed embeds a non-empty batch of texts at the given role,
	// returning one Vectors value per input text, populated for
	// exactly the requested precisions.
	Embed(ctx context.Context, texts []string, role Role, precisions []Precision) ([]Vectors, error)
}

// MaxOracleBatch is the default upper bound on texts passed to a single
// Embed call (spec §4.1).
const MaxOracleBatch = 960

// FloatEmbedFunc embeds a single text into a float vector. It is the
// shape most third-party embedding clients expose natively.
type FloatEmbedFunc func(ctx context.Context, text string, role Role) ([]float32, error)

// BaseOracle adapts a FloatEmbedFunc into a full Oracle by deriving
// Int8 and UBinary precisions locally via package quant, the way the
// teacher's BaseEmbedder adapts a single-text embed function into a
// batch-capable Embedder (pkg/sqvect/embedder.go). Texts are embedded
// concurrently, one goroutine per text, mirroring that fan-out.
type BaseOracle struct {
	EmbedFn FloatEmbedFunc
}

func (b *BaseOracle) Embed(ctx context.Context, texts []string, role Role, precisions []Precision) ([]Vectors, error) {
	type result struct {
		idx int
		vec []float32
		err error
	}

	ch := make(chan result, len(texts))
	for i, text := range texts {
		go func(idx int, t string) {
			vec, err := b.EmbedFn(ctx, t, role)
			ch <- result{idx: idx, vec: vec, err: err}
		}(i, text)
	}

	floats := make([][]float32, len(texts))
	for range texts {
		r := <-ch
		if r.err != nil {
			return nil, wrapErr("embed", KindOracleFailure, r.err)
		}
		floats[r.idx] = r.vec
	}

	want := func(p Precision) bool {
		for _, want := range precisions {
			if want == p {
				return true
			}
		}
		return false
	}

	out := make([]Vectors, len(texts))
	for i, f := range floats {
		var v Vectors
		if want(PrecisionFloat) {
			v.Float = f
		}
		if want(PrecisionInt8) {
			v.Int8 = quant.QuantizeInt8(f)
		}
		if want(PrecisionUBinary) {
			packed, err := quant.PackBinary(f)
			if err != nil {
				return nil, wrapErr("embed", KindDimensionMismatch, err)
			}
			v.UBinary = packed
		}
		out[i] = v
	}
	return out, nil
}

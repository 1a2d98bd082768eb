// Package bvdb implements a disk-resident binary vector search engine.
//
// It indexes documents by multi-precision embeddings (packed-binary,
// int8, and float) and answers nearest-neighbor queries through a
// three-phase coarse-to-fine re-ranking pipeline: an exact-Hamming
// flat scan over packed-binary vectors narrows the candidate set, a
// float-vs-unpacked-binary dot product rescores the shortlist, and a
// float-vs-int8 cosine pass produces the final ranking.
//
// # Key Components
//
//   - DB: the Facade. Owns the embedding Oracle, the binary index,
//     and the document store, and enforces the cross-store invariant
//     between them.
//   - binindex.Index: an ID-addressable exact-Hamming nearest-neighbor
//     structure over packed-binary vectors.
//   - docstore.Store: a SQLite-backed key-value store mapping document
//     id to payload + int8 embedding.
//   - Oracle: the interface through which callers supply an embedding
//     model; bvdb never calls out to a network itself.
package bvdb

// Package binindex implements the Binary Index: an ID-addressable,
// exact-Hamming nearest-neighbor structure over D-bit packed-binary
// vectors (spec §4.2). It is the core's equivalent of the teacher's
// FlatIndex (pkg/index/flat.go) — id-keyed, brute-force, heap-based
// top-k — generalized from float cosine over string ids to Hamming
// distance over int64 document ids, and given single-file persistence
// per spec §6.
package binindex

import (
	"bufio"
	"container/heap"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Remove and Reconstruct when the id is not
// present in the index.
var ErrNotFound = errors.New("binindex: not found")

const (
	magic       = "BVDB"
	fileVersion = uint32(1)
	headerSize  = 32
)

// Index has no lock of its own. Concurrent Search calls are safe because
// they only read; Add and Remove must not run concurrently with any other
// call. Callers normally reach it only through the Facade, whose
// *sync.RWMutex gives the single-writer/multi-reader model of spec §5.
type Index struct {
	dim      int // bits per vector
	rowBytes int // dim/8

	ids     []int64       // row -> id
	idToRow map[int64]int // id -> row
	rows    [][]byte      // row -> packed bytes, each rowBytes long
}

// New creates an empty Binary Index for D-bit vectors. dim must be a
// positive multiple of 8.
func New(dim int) (*Index, error) {
	if dim <= 0 || dim%8 != 0 {
		return nil, fmt.Errorf("binindex: dimension %d must be a positive multiple of 8", dim)
	}
	return &Index{
		dim:      dim,
		rowBytes: dim / 8,
		idToRow:  make(map[int64]int),
	}, nil
}

// Dim returns the bit-dimension of vectors this index holds.
func (ix *Index) Dim() int { return ix.dim }

// Len returns the count of live rows (ntotal).
func (ix *Index) Len() int { return len(ix.ids) }

// IDs returns a copy of every live id, in no particular order. Callers
// use this for crash-recovery reconciliation against the Document
// Store (spec §4.4.1, §7).
func (ix *Index) IDs() []int64 {
	out := make([]int64, len(ix.ids))
	copy(out, ix.ids)
	return out
}

// Add appends rows for ids not currently present. It fails without
// applying any change if any id is already present or any vector has
// the wrong length, so a caller never has to reason about a partial
// batch (spec §4.2: "each id must not currently be present").
func (ix *Index) Add(ids []int64, vectors [][]byte) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("binindex: ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != ix.rowBytes {
			return fmt.Errorf("binindex: vector %d has %d bytes, want %d", i, len(v), ix.rowBytes)
		}
		if _, exists := ix.idToRow[ids[i]]; exists {
			return fmt.Errorf("binindex: id %d already present", ids[i])
		}
	}
	for i, id := range ids {
		row := make([]byte, ix.rowBytes)
		copy(row, vectors[i])
		ix.idToRow[id] = len(ix.rows)
		ix.ids = append(ix.ids, id)
		ix.rows = append(ix.rows, row)
	}
	return nil
}

// Remove deletes the row for id, swapping the last row into the hole
// so removal stays O(1) amortized (spec §9's dual-indexing design note).
func (ix *Index) Remove(id int64) error {
	row, ok := ix.idToRow[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	last := len(ix.rows) - 1
	if row != last {
		ix.rows[row] = ix.rows[last]
		ix.ids[row] = ix.ids[last]
		ix.idToRow[ix.ids[row]] = row
	}
	ix.rows = ix.rows[:last]
	ix.ids = ix.ids[:last]
	delete(ix.idToRow, id)
	return nil
}

// Reconstruct returns a copy of the stored packed-binary row for id.
func (ix *Index) Reconstruct(id int64) ([]byte, error) {
	row, ok := ix.idToRow[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	out := make([]byte, ix.rowBytes)
	copy(out, ix.rows[row])
	return out, nil
}

// Search returns the k row-ids with smallest Hamming distance to
// query, distances in non-decreasing order, ties broken by ascending
// id. k is clamped to the live row count; if fewer than k rows exist,
// every live row is returned.
func (ix *Index) Search(query []byte, k int) ([]int64, []int, error) {
	if len(query) != ix.rowBytes {
		return nil, nil, fmt.Errorf("binindex: query has %d bytes, want %d", len(query), ix.rowBytes)
	}
	if k > len(ix.rows) {
		k = len(ix.rows)
	}
	if k <= 0 {
		return nil, nil, nil
	}

	h := &maxHeap{}
	heap.Init(h)
	for row, id := range ix.ids {
		d := hammingDistance(query, ix.rows[row])
		if h.Len() < k {
			heap.Push(h, cand{id: id, dist: d})
		} else if d < (*h)[0].dist || (d == (*h)[0].dist && id < (*h)[0].id) {
			heap.Pop(h)
			heap.Push(h, cand{id: id, dist: d})
		}
	}

	out := make([]cand, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(cand)
	}
	// The heap's Less already orders equal distances by id, so out comes
	// out sorted by (distance, ascending id); this insertion pass
	// re-checks that order and leaves a sorted slice unchanged.
	stableSortTies(out)

	ids := make([]int64, len(out))
	dists := make([]int, len(out))
	for i, c := range out {
		ids[i] = c.id
		dists[i] = c.dist
	}
	return ids, dists, nil
}

func stableSortTies(cs []cand) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && (cs[j].dist < cs[j-1].dist || (cs[j].dist == cs[j-1].dist && cs[j].id < cs[j-1].id)); j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

func hammingDistance(a, b []byte) int {
	dist := 0
	n := len(a)
	i := 0
	for ; i+8 <= n; i += 8 {
		x := binary.LittleEndian.Uint64(a[i : i+8])
		y := binary.LittleEndian.Uint64(b[i : i+8])
		dist += bits.OnesCount64(x ^ y)
	}
	for ; i < n; i++ {
		dist += bits.OnesCount8(a[i] ^ b[i])
	}
	return dist
}

type cand struct {
	id   int64
	dist int
}

// maxHeap is a max-heap over distance (ties broken by the larger id
// ranking higher, so it is evicted first and the smaller id survives),
// giving a size-k min-distance selection the
// way the teacher's flatMaxHeap does for cosine distance.
type maxHeap []cand

func (h maxHeap) Len() int { return len(h) }
func (h maxHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist > h[j].dist
	}
	return h[i].id > h[j].id
}
func (h maxHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)   { *h = append(*h, x.(cand)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Persist writes the index to path atomically: a temporary file is
// written in full, then renamed over path, so a crash mid-write never
// corrupts the previous generation (spec §4.4.6, §6).
func (ix *Index) Persist(path string) error {
	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.New().String())
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("binindex: create temp file: %w", err)
	}

	if err := ix.writeTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("binindex: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("binindex: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("binindex: rename temp file: %w", err)
	}
	return nil
}

func (ix *Index) writeTo(f *os.File) error {
	w := bufio.NewWriter(f)

	header := make([]byte, headerSize)
	copy(header[0:4], magic)
	binary.LittleEndian.PutUint32(header[4:8], fileVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(ix.dim))
	binary.LittleEndian.PutUint64(header[12:20], uint64(len(ix.ids)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("binindex: write header: %w", err)
	}

	idBuf := make([]byte, 8)
	for _, id := range ix.ids {
		binary.LittleEndian.PutUint64(idBuf, uint64(id))
		if _, err := w.Write(idBuf); err != nil {
			return fmt.Errorf("binindex: write id table: %w", err)
		}
	}
	for _, row := range ix.rows {
		if _, err := w.Write(row); err != nil {
			return fmt.Errorf("binindex: write row: %w", err)
		}
	}
	return w.Flush()
}

// Load reads an Index previously written by Persist.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("binindex: open: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("binindex: read header: %w", err)
	}
	if string(header[0:4]) != magic {
		return nil, fmt.Errorf("binindex: bad magic %q", header[0:4])
	}
	dim := int(binary.LittleEndian.Uint32(header[8:12]))
	ntotal := binary.LittleEndian.Uint64(header[12:20])

	ix, err := New(dim)
	if err != nil {
		return nil, err
	}

	ix.ids = make([]int64, ntotal)
	idBuf := make([]byte, 8)
	for i := range ix.ids {
		if _, err := io.ReadFull(r, idBuf); err != nil {
			return nil, fmt.Errorf("binindex: read id table: %w", err)
		}
		ix.ids[i] = int64(binary.LittleEndian.Uint64(idBuf))
	}

	ix.rows = make([][]byte, ntotal)
	for i := range ix.rows {
		row := make([]byte, ix.rowBytes)
		if _, err := io.ReadFull(r, row); err != nil {
			return nil, fmt.Errorf("binindex: read row: %w", err)
		}
		ix.rows[i] = row
	}

	ix.idToRow = make(map[int64]int, ntotal)
	for row, id := range ix.ids {
		ix.idToRow[id] = row
	}

	return ix, nil
}

// Package index implements an exact inner-product vector index.
//
// The index is append-only: positions are stable insertion-order handles
// and there is no delete or update primitive. Removing a vector's effect
// requires discarding the index and rebuilding it from the durable record
// store. Mutation is not safe under concurrency; callers serialize access.
package index

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Result is a single search hit: the insertion-order position of the
// matched vector and its inner-product score against the query.
type Result struct {
	Position int
	Score    float32
}

// Flat is a dense exact-search index over fixed-dimension vectors.
// Scoring is raw inner product; callers wanting cosine semantics must
// L2-normalize vectors before adding or querying.
type Flat struct {
	dim     int
	vectors [][]float32
}

func New(dim int) *Flat {
	return &Flat{
		dim:     dim,
		vectors: make([][]float32, 0),
	}
}

func (f *Flat) Dim() int {
	return f.dim
}

func (f *Flat) Count() int {
	return len(f.vectors)
}

// Add appends a vector and returns its position.
func (f *Flat) Add(vec []float32) (int, error) {
	if len(vec) != f.dim {
		return 0, fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(vec), f.dim)
	}

	v := make([]float32, f.dim)
	copy(v, vec)

	f.vectors = append(f.vectors, v)
	return len(f.vectors) - 1, nil
}

// Search returns at most k results ordered by descending inner-product
// score. An empty index yields an empty result list, not an error.
func (f *Flat) Search(query []float32, k int) ([]Result, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(query), f.dim)
	}

	if k <= 0 || len(f.vectors) == 0 {
		return []Result{}, nil
	}

	results := make([]Result, len(f.vectors))
	for i, v := range f.vectors {
		results[i] = Result{
			Position: i,
			Score:    Dot(query, v),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > len(results) {
		k = len(results)
	}

	return results[:k], nil
}

type snapshot struct {
	Dim     int
	Vectors [][]float32
}

// Snapshot serializes the index for backup artifacts.
func (f *Flat) Snapshot() ([]byte, error) {
	var buf bytes.Buffer

	s := snapshot{
		Dim:     f.dim,
		Vectors: f.vectors,
	}

	if err := gob.NewEncoder(&buf).Encode(&s); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Restore replaces the index contents with a snapshot of the same
// dimension. The live contents are untouched on failure.
func (f *Flat) Restore(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}

	if s.Dim != f.dim {
		return fmt.Errorf("%w: snapshot has %d, index expects %d", ErrDimensionMismatch, s.Dim, f.dim)
	}

	if s.Vectors == nil {
		s.Vectors = make([][]float32, 0)
	}

	f.vectors = s.Vectors
	return nil
}

// Dot computes the inner product of two equal-length vectors.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm computes the L2 norm of a vector.
func Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// Normalize returns a unit vector in the same direction. The zero vector
// is returned unchanged.
func Normalize(v []float32) []float32 {
	norm := Norm(v)
	if norm == 0 {
		return v
	}

	result := make([]float32, len(v))
	for i := range v {
		result[i] = v[i] / norm
	}
	return result
}

// Combine blends a query vector with a user vector as
// (1-weight)*query + weight*user and L2-normalizes the result.
func Combine(query, user []float32, weight float32) ([]float32, error) {
	if len(user) != len(query) {
		return nil, fmt.Errorf("%w: query has %d, user has %d", ErrDimensionMismatch, len(query), len(user))
	}

	combined := make([]float32, len(query))
	for i := range query {
		combined[i] = (1-weight)*query[i] + weight*user[i]
	}

	return Normalize(combined), nil
}

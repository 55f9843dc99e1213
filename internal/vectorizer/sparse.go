package vectorizer

import (
	"math"
	"sort"
)

// SparseVector holds the non-zero entries of a row, sorted by index
type SparseVector struct {
	Indices []int     `json:"indices"`
	Values  []float64 `json:"values"`
	Dim     int       `json:"dim"`
}

// NewSparseVector builds a vector of the given dimension from an index->value map,
// dropping zeros and sorting by index
func NewSparseVector(dim int, entries map[int]float64) SparseVector {
	sv := SparseVector{
		Indices: make([]int, 0, len(entries)),
		Values:  make([]float64, 0, len(entries)),
		Dim:     dim,
	}
	for idx := range entries {
		if entries[idx] != 0 {
			sv.Indices = append(sv.Indices, idx)
		}
	}
	sort.Ints(sv.Indices)
	for _, idx := range sv.Indices {
		sv.Values = append(sv.Values, entries[idx])
	}
	return sv
}

// Nnz returns the number of stored entries
func (sv SparseVector) Nnz() int {
	return len(sv.Indices)
}

// Dot computes the dot product with a dense vector
func (sv SparseVector) Dot(dense []float64) float64 {
	var sum float64
	for i, idx := range sv.Indices {
		if idx < len(dense) {
			sum += sv.Values[i] * dense[idx]
		}
	}
	return sum
}

// SquaredNorm returns the sum of squared values
func (sv SparseVector) SquaredNorm() float64 {
	var sum float64
	for _, v := range sv.Values {
		sum += v * v
	}
	return sum
}

// L2Norm returns the Euclidean norm
func (sv SparseVector) L2Norm() float64 {
	return math.Sqrt(sv.SquaredNorm())
}

// ToDense expands the vector into a Dim-length slice
func (sv SparseVector) ToDense() []float64 {
	dense := make([]float64, sv.Dim)
	for i, idx := range sv.Indices {
		if idx < sv.Dim {
			dense[idx] = sv.Values[i]
		}
	}
	return dense
}

// Append returns a new vector with dense appended after sv's columns
func (sv SparseVector) Append(dense []float64) SparseVector {
	out := SparseVector{
		Indices: make([]int, len(sv.Indices), len(sv.Indices)+len(dense)),
		Values:  make([]float64, len(sv.Values), len(sv.Values)+len(dense)),
		Dim:     sv.Dim + len(dense),
	}
	copy(out.Indices, sv.Indices)
	copy(out.Values, sv.Values)
	for i, v := range dense {
		if v == 0 {
			continue
		}
		out.Indices = append(out.Indices, sv.Dim+i)
		out.Values = append(out.Values, v)
	}
	return out
}

// Package matrixstore loads dense float64 matrices and vectors from CSV
// sources, maintains a binary side-cache keyed by source path so that a
// slow textual parse happens at most once per path, and publishes the
// result read-only to every concurrent job that asks for it.
package matrixstore

// Matrix is a rectangular, row-major array of IEEE-754 doubles. Once
// returned from Store.Load it is never mutated; callers must not write
// through Data.
type Matrix struct {
	Data []float64 // len(Data) == Rows*Cols, row-major
	Rows int
	Cols int
}

// Row returns a slice view of row i without copying. The caller must
// treat it as read-only.
func (m *Matrix) Row(i int) []float64 {
	start := i * m.Cols
	return m.Data[start : start+m.Cols]
}

// MulVec computes H*p, traversing H row-major. It never materializes Hᵀ.
func (m *Matrix) MulVec(p []float64) []float64 {
	out := make([]float64, m.Rows)
	for i := 0; i < m.Rows; i++ {
		row := m.Row(i)
		var sum float64
		for j, v := range row {
			sum += v * p[j]
		}
		out[i] = sum
	}
	return out
}

// TransposeMulVec computes Hᵀ*r by a single column-accumulating pass over
// H's rows, never forming the transpose explicitly.
func (m *Matrix) TransposeMulVec(r []float64) []float64 {
	out := make([]float64, m.Cols)
	for i := 0; i < m.Rows; i++ {
		ri := r[i]
		if ri == 0 {
			continue
		}
		row := m.Row(i)
		for j, v := range row {
			out[j] += v * ri
		}
	}
	return out
}

// Vector is a dense array of doubles, storage-compatible with a 1×L
// Matrix; consumers reshape it to (S, N) as needed.
type Vector struct {
	Data []float64
}

// Len returns the vector's length.
func (v *Vector) Len() int {
	return len(v.Data)
}

// Package validate is the offline harness from spec.md §4.8: it loads
// fixed fixture files, computes M·N and aᵀ·M, and compares against
// reference outputs with the tolerances original_source/Dados/validar.py
// uses.
package validate

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/matrixstore"
)

const (
	absTol = 1e-8
	relTol = 1e-5
)

// Report is the informational (non process-terminal) outcome of one
// fixture comparison.
type Report struct {
	Name   string
	Passed bool
	Detail string
}

// Run loads M.csv, N.csv, a.csv, MN.csv, aM.csv from dir, computes M·N
// and aᵀ·M, and compares each against its reference fixture.
func Run(dir string) ([]Report, error) {
	store := matrixstore.NewStore(',')

	m, err := store.Load(filepath.Join(dir, "M.csv"))
	if err != nil {
		return nil, fmt.Errorf("loading M.csv: %w", err)
	}
	n, err := store.Load(filepath.Join(dir, "N.csv"))
	if err != nil {
		return nil, fmt.Errorf("loading N.csv: %w", err)
	}
	a, err := store.Load(filepath.Join(dir, "a.csv"))
	if err != nil {
		return nil, fmt.Errorf("loading a.csv: %w", err)
	}
	wantMN, err := store.Load(filepath.Join(dir, "MN.csv"))
	if err != nil {
		return nil, fmt.Errorf("loading MN.csv: %w", err)
	}
	wantAM, err := store.Load(filepath.Join(dir, "aM.csv"))
	if err != nil {
		return nil, fmt.Errorf("loading aM.csv: %w", err)
	}

	gotMN := matMul(m, n)
	gotAM := vecMatMul(a.Data, m)

	reports := []Report{
		compareMatrix("M*N", gotMN, wantMN),
		compareVectorRounded("a^T*M", gotAM, wantAM.Data),
	}
	return reports, nil
}

// matMul computes the dense matrix product a*b, a.Cols must equal
// b.Rows.
func matMul(a, b *matrixstore.Matrix) *matrixstore.Matrix {
	out := make([]float64, a.Rows*b.Cols)
	for i := 0; i < a.Rows; i++ {
		rowA := a.Row(i)
		for k, aik := range rowA {
			if aik == 0 {
				continue
			}
			rowB := b.Row(k)
			for j, bkj := range rowB {
				out[i*b.Cols+j] += aik * bkj
			}
		}
	}
	return &matrixstore.Matrix{Data: out, Rows: a.Rows, Cols: b.Cols}
}

// vecMatMul computes aᵀ·M for a row vector a (length M.Rows).
func vecMatMul(a []float64, m *matrixstore.Matrix) []float64 {
	out := make([]float64, m.Cols)
	for i := 0; i < m.Rows; i++ {
		ai := a[i]
		if ai == 0 {
			continue
		}
		row := m.Row(i)
		for j, v := range row {
			out[j] += ai * v
		}
	}
	return out
}

func compareMatrix(name string, got, want *matrixstore.Matrix) Report {
	if got.Rows != want.Rows || got.Cols != want.Cols {
		return Report{Name: name, Passed: false,
			Detail: fmt.Sprintf("shape mismatch: got %dx%d want %dx%d", got.Rows, got.Cols, want.Rows, want.Cols)}
	}
	for i := range got.Data {
		if !closeEnough(got.Data[i], want.Data[i]) {
			return Report{Name: name, Passed: false,
				Detail: fmt.Sprintf("element %d: got %v want %v", i, got.Data[i], want.Data[i])}
		}
	}
	return Report{Name: name, Passed: true}
}

// compareVectorRounded rounds got to two decimals before comparing,
// matching validar.py's np.round(resultado_calculado_aM, 2).
func compareVectorRounded(name string, got, want []float64) Report {
	if len(got) != len(want) {
		return Report{Name: name, Passed: false,
			Detail: fmt.Sprintf("length mismatch: got %d want %d", len(got), len(want))}
	}
	for i := range got {
		rounded := math.Round(got[i]*100) / 100
		if !closeEnough(rounded, want[i]) {
			return Report{Name: name, Passed: false,
				Detail: fmt.Sprintf("element %d: got %v want %v", i, rounded, want[i])}
		}
	}
	return Report{Name: name, Passed: true}
}

func closeEnough(got, want float64) bool {
	diff := math.Abs(got - want)
	if diff <= absTol {
		return true
	}
	return diff <= relTol*math.Abs(want)
}

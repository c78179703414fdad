// Package regularize computes the Tikhonov regularization coefficient λ
// that internal/solver's CGLS path uses.
package regularize

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/matrixstore"
)

// factor is the hard-coded regularization fraction the original source
// uses; spec.md §9 keeps it hard-coded rather than exposing it as a
// request or config field.
const factor = 0.10

// Lambda computes λ = factor·‖Hᵀg‖∞, the infinity norm of the
// transpose-matrix-vector product, using H's row-major traversal
// directly (Hᵀ is never materialized).
func Lambda(h *matrixstore.Matrix, g []float64) float64 {
	htg := h.TransposeMulVec(g)
	return factor * floats.Norm(htg, math.Inf(1))
}

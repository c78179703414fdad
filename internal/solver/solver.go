// Package solver implements the Conjugate Gradient on the Normal
// Equations (CGNR) and its Tikhonov-regularized variant (CGLS) for
// HᵀH f = Hᵀg, operating directly on a dense, row-major matrix without
// ever materializing its transpose.
package solver

import (
	"math"
	"runtime"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/matrixstore"
)

// Options bounds a solver run. Tol and MaxIter default to 1e-4 and 10
// per spec.md §4.4 when left zero.
type Options struct {
	MaxIter int
	Tol     float64
	// Lambda enables CGLS (Tikhonov) when positive; zero or a negative
	// value selects unregularized CGNR.
	Lambda float64
}

// Result reports what spec.md §4.4.4 calls the solver's observability
// contract.
type Result struct {
	F             []float64
	IterationsDone int
	WallTime       time.Duration
	ResidualChange float64
	PeakMemDeltaMB float64
}

func (o Options) resolved() Options {
	if o.MaxIter <= 0 {
		o.MaxIter = 10
	}
	if o.Tol <= 0 {
		o.Tol = 1e-4
	}
	return o
}

// Solve runs CGLS when opts.Lambda > 0, CGNR otherwise.
func Solve(h *matrixstore.Matrix, g []float64, opts Options) Result {
	opts = opts.resolved()
	if opts.Lambda > 0 {
		return solveCGLS(h, g, opts)
	}
	return solveCGNR(h, g, opts)
}

func memRSSMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.Sys) / (1024 * 1024)
}

// solveCGNR implements spec.md §4.4.1 exactly, including the k>0 guard
// on the tolerance check — the unguarded variant described in §9 must
// never be ported.
func solveCGNR(h *matrixstore.Matrix, g []float64, opts Options) Result {
	start := time.Now()
	memBefore := memRSSMB()

	cols := h.Cols
	f := make([]float64, cols)
	r := append([]float64(nil), g...)

	z := h.TransposeMulVec(r)
	p := append([]float64(nil), z...)

	rDotROld := floats.Dot(r, r)
	zDotZOld := floats.Dot(z, z)

	iterationsDone := 0
	epsilon := 0.0

	for k := 0; k < opts.MaxIter; k++ {
		iterationsDone = k + 1

		w := h.MulVec(p)
		wDotW := floats.Dot(w, w)
		if wDotW < 1e-20 {
			break
		}

		alpha := zDotZOld / wDotW

		floats.AddScaled(f, alpha, p)
		floats.AddScaled(r, -alpha, w)

		rDotRNew := floats.Dot(r, r)
		epsilon = math.Abs(rDotRNew - rDotROld)

		if epsilon < opts.Tol && k > 0 {
			break
		}

		z = h.TransposeMulVec(r)
		zDotZNew := floats.Dot(z, z)
		beta := zDotZNew / zDotZOld

		// p = z + beta*p
		for i := range p {
			p[i] = z[i] + beta*p[i]
		}

		zDotZOld = zDotZNew
		rDotROld = rDotRNew
	}

	memAfter := memRSSMB()
	delta := memAfter - memBefore
	if delta < 0 {
		delta = 0
	}

	return Result{
		F:              f,
		IterationsDone: iterationsDone,
		WallTime:       time.Since(start),
		ResidualChange: epsilon,
		PeakMemDeltaMB: delta,
	}
}

// solveCGLS implements spec.md §4.4.2 exactly.
func solveCGLS(h *matrixstore.Matrix, g []float64, opts Options) Result {
	start := time.Now()
	memBefore := memRSSMB()

	lambda := opts.Lambda
	lambdaSq := lambda * lambda

	cols := h.Cols
	f := make([]float64, cols)
	r := append([]float64(nil), g...)

	// s0 = H^T r0 - lambda*f0 = H^T g since f0 = 0.
	s := h.TransposeMulVec(r)
	p := append([]float64(nil), s...)

	gamma := floats.Dot(s, s)

	iterationsDone := 0

	for k := 0; k < opts.MaxIter; k++ {
		iterationsDone = k + 1

		q := h.MulVec(p)
		delta := floats.Dot(q, q) + lambdaSq*floats.Dot(p, p)
		if delta == 0 {
			break
		}

		alpha := gamma / delta

		floats.AddScaled(f, alpha, p)
		floats.AddScaled(r, -alpha, q)

		sNew := h.TransposeMulVec(r)
		floats.AddScaled(sNew, -lambda, f)

		gammaNew := floats.Dot(sNew, sNew)

		fNorm := floats.Norm(f, 2)
		if fNorm > 0 {
			alphaPNorm := math.Abs(alpha) * floats.Norm(p, 2)
			if alphaPNorm/fNorm < opts.Tol {
				gamma = gammaNew
				break
			}
		}

		beta := gammaNew / gamma
		for i := range p {
			p[i] = sNew[i] + beta*p[i]
		}
		gamma = gammaNew
	}

	memAfter := memRSSMB()
	delta := memAfter - memBefore
	if delta < 0 {
		delta = 0
	}

	return Result{
		F:              f,
		IterationsDone: iterationsDone,
		WallTime:       time.Since(start),
		ResidualChange: gamma,
		PeakMemDeltaMB: delta,
	}
}

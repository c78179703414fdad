// Package signalproc applies the per-row signal-gain compensation
// γ(ℓ) = √(100 + ℓ²/20) that C1's raw signal vector needs before it
// reaches the solver.
package signalproc

import "math"

// Gain returns γ(row) = sqrt(100 + row²/20).
func Gain(row int) float64 {
	return math.Sqrt(100 + float64(row*row)/20)
}

// ApplyGain reshapes g (length s*n) into an s-row, n-column grid and
// multiplies every entry of row ℓ by Gain(ℓ), flattening back to length
// s*n. It operates on a copy: g is never mutated.
func ApplyGain(g []float64, s, n int) []float64 {
	out := make([]float64, len(g))
	copy(out, g)

	for row := 0; row < s; row++ {
		gamma := Gain(row)
		start := row * n
		end := start + n
		if end > len(out) {
			end = len(out)
		}
		for i := start; i < end; i++ {
			out[i] *= gamma
		}
	}

	return out
}

// RemoveGain divides every entry of row ℓ by Gain(ℓ), the exact inverse
// of ApplyGain. Used only by tests verifying the pre-processor's
// round-trip invariant; the solver never calls this.
func RemoveGain(g []float64, s, n int) []float64 {
	out := make([]float64, len(g))
	copy(out, g)

	for row := 0; row < s; row++ {
		gamma := Gain(row)
		start := row * n
		end := start + n
		if end > len(out) {
			end = len(out)
		}
		for i := start; i < end; i++ {
			out[i] /= gamma
		}
	}

	return out
}

package regularize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/matrixstore"
)

func TestLambda_NonNegative(t *testing.T) {
	h := &matrixstore.Matrix{Data: []float64{1, 2, 3, 4}, Rows: 2, Cols: 2}
	g := []float64{5, -7}

	lambda := Lambda(h, g)
	assert.GreaterOrEqual(t, lambda, 0.0)
}

func TestLambda_ZeroWhenHTransposeGIsZero(t *testing.T) {
	// H = [[1,-1],[1,-1]], g = [1,-1] -> H^T g = [1-1, -1+1] = [0,0]
	h := &matrixstore.Matrix{Data: []float64{1, -1, 1, -1}, Rows: 2, Cols: 2}
	g := []float64{1, -1}

	lambda := Lambda(h, g)
	assert.Equal(t, 0.0, lambda)
}

func TestLambda_MatchesHandComputedValue(t *testing.T) {
	// H = [[1,2],[3,4]], g = [1,1] -> H^T g = [1+3, 2+4] = [4,6]
	// lambda = 0.10 * max(|4|,|6|) = 0.6
	h := &matrixstore.Matrix{Data: []float64{1, 2, 3, 4}, Rows: 2, Cols: 2}
	g := []float64{1, 1}

	lambda := Lambda(h, g)
	assert.InDelta(t, 0.6, lambda, 1e-12)
}

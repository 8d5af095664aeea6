package lsq

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimize_Rosenbrock(t *testing.T) {
	p := Problem{
		M: 2,
		Residuals: func(dst, x []float64) {
			dst[0] = 10 * (x[1] - x[0]*x[0])
			dst[1] = 1 - x[0]
		},
	}

	res, err := Minimize(p, []float64{-1.2, 1}, Settings{MaxIterations: 200})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.InDelta(t, 1.0, res.X[0], 1e-6)
	assert.InDelta(t, 1.0, res.X[1], 1e-6)
	assert.Less(t, res.Cost, 1e-12)
}

func TestMinimize_ExponentialFit(t *testing.T) {
	// y = a * exp(b * t), sampled without noise.
	a, b := 2.5, -0.7
	ts := make([]float64, 20)
	ys := make([]float64, 20)
	for i := range ts {
		ts[i] = float64(i) * 0.25
		ys[i] = a * math.Exp(b*ts[i])
	}

	p := Problem{
		M: len(ts),
		Residuals: func(dst, x []float64) {
			for i := range ts {
				dst[i] = x[0]*math.Exp(x[1]*ts[i]) - ys[i]
			}
		},
	}

	res, err := Minimize(p, []float64{1, 0}, Settings{})
	require.NoError(t, err)
	assert.InDelta(t, a, res.X[0], 1e-6)
	assert.InDelta(t, b, res.X[1], 1e-6)
}

func TestMinimize_IterationLimitIsNotAnError(t *testing.T) {
	p := Problem{
		M: 2,
		Residuals: func(dst, x []float64) {
			dst[0] = 10 * (x[1] - x[0]*x[0])
			dst[1] = 1 - x[0]
		},
	}

	res, err := Minimize(p, []float64{-1.2, 1}, Settings{MaxIterations: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
	assert.False(t, math.IsNaN(res.Cost))
}

func TestMinimize_InvalidProblem(t *testing.T) {
	_, err := Minimize(Problem{}, []float64{1}, Settings{})
	assert.ErrorIs(t, err, ErrBadProblem)

	underdetermined := Problem{M: 1, Residuals: func(dst, x []float64) { dst[0] = x[0] + x[1] }}
	_, err = Minimize(underdetermined, []float64{1, 2}, Settings{})
	assert.ErrorIs(t, err, ErrBadProblem)
}

// Package lsq implements a dense Levenberg-Marquardt solver for nonlinear least squares.
package lsq

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ResidualFunc fills dst (length M) with the residuals at x (length N). It must not modify x.
type ResidualFunc func(dst, x []float64)

// Problem describes a least-squares problem: minimize sum(r_i(x)^2).
type Problem struct {
	Residuals ResidualFunc
	// M is the number of residuals.
	M int
}

// Settings controls termination. Zero values pick defaults.
type Settings struct {
	MaxIterations int
	// Epsilon stops iteration when the relative step size or relative cost decrease falls below it.
	Epsilon float64
	// Step is the finite-difference step for the Jacobian.
	Step float64
}

// Result is the outcome of a minimization.
type Result struct {
	X          []float64
	Cost       float64 // sum of squared residuals at X
	Iterations int
	Converged  bool
}

const (
	defaultMaxIterations = 100
	defaultEpsilon       = 1e-10
	defaultStep          = 1e-6

	initialLambda = 1e-3
	maxLambda     = 1e16
)

// ErrBadProblem is returned for malformed inputs.
var ErrBadProblem = errors.New("lsq: invalid problem")

// Minimize runs Levenberg-Marquardt starting from x0. A fit that hits the iteration limit is not
// an error: the residual tells the caller how good it is.
func Minimize(p Problem, x0 []float64, s Settings) (Result, error) {
	n := len(x0)
	if p.Residuals == nil || p.M <= 0 || n == 0 {
		return Result{}, ErrBadProblem
	}
	if p.M < n {
		return Result{}, fmt.Errorf("%w: %d residuals for %d parameters", ErrBadProblem, p.M, n)
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = defaultMaxIterations
	}
	if s.Epsilon <= 0 {
		s.Epsilon = defaultEpsilon
	}
	if s.Step <= 0 {
		s.Step = defaultStep
	}

	x := append([]float64(nil), x0...)
	r := make([]float64, p.M)
	p.Residuals(r, x)
	cost := floats.Dot(r, r)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return Result{}, fmt.Errorf("%w: non-finite residuals at start", ErrBadProblem)
	}

	jac := mat.NewDense(p.M, n, nil)
	jtj := mat.NewSymDense(n, nil)
	a := mat.NewSymDense(n, nil)
	g := mat.NewVecDense(n, nil)
	var delta mat.VecDense
	var chol mat.Cholesky

	xNew := make([]float64, n)
	rNew := make([]float64, p.M)
	jacSettings := &fd.JacobianSettings{Formula: fd.Central, Step: s.Step}

	lambda := initialLambda
	res := Result{}
	for res.Iterations < s.MaxIterations {
		res.Iterations++

		fd.Jacobian(jac, p.Residuals, x, jacSettings)
		jtj.SymOuterK(1, jac.T())
		g.MulVec(jac.T(), mat.NewVecDense(p.M, r))

		improved := false
		for lambda <= maxLambda {
			a.CopySym(jtj)
			for i := 0; i < n; i++ {
				d := jtj.At(i, i)
				if d < 1e-12 {
					d = 1e-12
				}
				a.SetSym(i, i, jtj.At(i, i)+lambda*d)
			}
			if !chol.Factorize(a) {
				lambda *= 10
				continue
			}
			if err := chol.SolveVecTo(&delta, g); err != nil {
				lambda *= 10
				continue
			}
			for i := 0; i < n; i++ {
				xNew[i] = x[i] - delta.AtVec(i)
			}
			p.Residuals(rNew, xNew)
			costNew := floats.Dot(rNew, rNew)
			if math.IsNaN(costNew) || costNew >= cost {
				lambda *= 10
				continue
			}

			stepNorm := floats.Norm(delta.RawVector().Data, 2)
			xNorm := floats.Norm(x, 2)
			decrease := cost - costNew

			copy(x, xNew)
			copy(r, rNew)
			cost = costNew
			lambda = math.Max(lambda/10, 1e-12)
			improved = true

			if stepNorm <= s.Epsilon*(xNorm+s.Epsilon) || decrease <= s.Epsilon*costNew {
				res.Converged = true
			}
			break
		}
		if !improved {
			// No step reduces the cost: we are at a (possibly local) minimum.
			res.Converged = true
		}
		if res.Converged || cost == 0 {
			res.Converged = true
			break
		}
	}

	res.X = x
	res.Cost = cost
	return res, nil
}

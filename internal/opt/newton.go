package opt

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInfeasible is returned by a residual function that cannot be
	// evaluated at the requested point. Newton backtracks away from it.
	ErrInfeasible = errors.New("opt: infeasible point")

	ErrSingular      = errors.New("opt: singular jacobian")
	ErrNoProgress    = errors.New("opt: line search made no progress")
	ErrMaxIterations = errors.New("opt: newton iteration cap reached")
)

// Residual evaluates F(x) into out.
type Residual func(x, out []float64) error

// NewtonSettings controls a damped Newton root-find.
type NewtonSettings struct {
	// Tolerance on max |F(x)|.
	Tolerance float64

	// MaxIterations caps the number of Jacobian evaluations.
	MaxIterations int

	// MaxStep caps the largest component of a single step. Zero disables.
	MaxStep float64

	// MinDamping is the smallest backtracking factor tried before giving up.
	MinDamping float64

	// FDStep is the forward-difference step for the Jacobian.
	FDStep float64

	// OnStep, if set, receives the iteration number and sup-norm residual
	// after every accepted step.
	OnStep func(iter int, residual float64)
}

// DefaultNewtonSettings returns settings for well-scaled problems.
func DefaultNewtonSettings() NewtonSettings {
	return NewtonSettings{
		Tolerance:     1e-10,
		MaxIterations: 100,
		MaxStep:       2,
		MinDamping:    1e-6,
		FDStep:        1e-7,
	}
}

// NewtonResult is the outcome of Newton.
type NewtonResult struct {
	X          []float64
	Residual   float64
	Iterations int
}

// Newton finds a root of f starting from x0. Each iteration builds a
// forward-difference Jacobian, solves the linear step with an LU
// factorization and halves the step until the residual norm decreases.
func Newton(f Residual, x0 []float64, s NewtonSettings) (NewtonResult, error) {
	n := len(x0)
	x := append([]float64(nil), x0...)
	fx := make([]float64, n)
	res := NewtonResult{X: x}

	if err := f(x, fx); err != nil {
		return res, fmt.Errorf("newton: initial point: %w", err)
	}
	norm := supNorm(fx)
	res.Residual = norm
	if math.IsNaN(norm) {
		return res, fmt.Errorf("newton: initial residual is NaN: %w", ErrInfeasible)
	}

	jac := mat.NewDense(n, n, nil)
	xNew := make([]float64, n)
	fNew := make([]float64, n)
	neg := make([]float64, n)
	var lu mat.LU
	var dx mat.VecDense

	for iter := 0; iter < s.MaxIterations; iter++ {
		if norm < s.Tolerance {
			res.Iterations = iter
			return res, nil
		}

		var jacErr error
		fd.Jacobian(jac, func(y, xp []float64) {
			if err := f(xp, y); err != nil {
				jacErr = err
				for i := range y {
					y[i] = math.NaN()
				}
			}
		}, x, &fd.JacobianSettings{
			Formula:     fd.Forward,
			OriginValue: fx,
			Step:        s.FDStep,
		})
		if jacErr != nil {
			return res, fmt.Errorf("newton: jacobian at iteration %d: %w", iter, jacErr)
		}

		lu.Factorize(jac)
		floats.ScaleTo(neg, -1, fx)
		if err := lu.SolveVecTo(&dx, false, mat.NewVecDense(n, neg)); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
				return res, fmt.Errorf("newton: iteration %d: %w", iter, ErrSingular)
			}
		}
		step := dx.RawVector().Data
		if floats.HasNaN(step) || math.IsInf(floats.Norm(step, 1), 0) {
			return res, fmt.Errorf("newton: iteration %d: %w", iter, ErrSingular)
		}

		scale := 1.0
		if big := supNorm(step); s.MaxStep > 0 && big > s.MaxStep {
			scale = s.MaxStep / big
		}

		l2 := floats.Norm(fx, 2)
		accepted := false
		for lambda := 1.0; lambda >= s.MinDamping; lambda /= 2 {
			copy(xNew, x)
			floats.AddScaled(xNew, lambda*scale, step)
			if err := f(xNew, fNew); err != nil {
				if errors.Is(err, ErrInfeasible) {
					continue
				}
				return res, fmt.Errorf("newton: iteration %d: %w", iter, err)
			}
			l2New := floats.Norm(fNew, 2)
			if math.IsNaN(l2New) {
				continue
			}
			if l2New <= (1-1e-4*lambda)*l2 {
				accepted = true
				break
			}
		}
		if !accepted {
			res.Iterations = iter + 1
			return res, fmt.Errorf("newton: iteration %d (residual %.3e): %w", iter, norm, ErrNoProgress)
		}

		copy(x, xNew)
		copy(fx, fNew)
		norm = supNorm(fx)
		res.Residual = norm
		if s.OnStep != nil {
			s.OnStep(iter+1, norm)
		}
	}

	res.Iterations = s.MaxIterations
	if norm < s.Tolerance {
		return res, nil
	}
	return res, fmt.Errorf("newton: residual %.3e after %d iterations: %w", norm, s.MaxIterations, ErrMaxIterations)
}

func supNorm(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if math.IsNaN(x) {
			return math.NaN()
		}
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

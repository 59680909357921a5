package daxm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LeastSquaresSolver recovers the deformation gradient in closed form.
//
// In reciprocal space the fit F* minimizing ||F*·q0 - q||_F over all
// paired columns satisfies F*·(q0·q0ᵀ) = q·q0ᵀ. The real-space gradient
// is the inverse transpose of F*, which comes out of a single linear
// solve against the same normal matrices. Exact for noise-free data and
// the reference the optimization strategy is validated against.
type LeastSquaresSolver struct {
	// UnitNormTol decides which measured columns were recorded unit
	// length; their strain-free counterparts are normalized to match
	// before the fit.
	UnitNormTol float64
}

// DefaultLeastSquaresSolver returns the solver with the standard
// unit-recording tolerance.
func DefaultLeastSquaresSolver() *LeastSquaresSolver {
	return &LeastSquaresSolver{UnitNormTol: 1e-8}
}

// Method implements GradientSolver.
func (s *LeastSquaresSolver) Method() string { return MethodLeastSquares }

// DeformationGradient implements GradientSolver. It requires at least
// three paired columns spanning three directions; degenerate input
// surfaces as ErrSingularSystem rather than a garbage matrix.
func (s *LeastSquaresSolver) DeformationGradient(v *Voxel) (*mat.Dense, error) {
	if v.ScatterVecs == nil {
		return nil, fmt.Errorf("%w: voxel has no scattering vectors", ErrShapeMismatch)
	}
	q := v.ScatterVecs
	q0, err := StrainFreeVectors(v.RecipBase, v.Planes, q, s.UnitNormTol)
	if err != nil {
		return nil, err
	}
	if _, n := q.Dims(); n < 3 {
		return nil, fmt.Errorf("%w: need at least 3 paired vectors, got %d", ErrSingularSystem, n)
	}

	var a, b mat.Dense
	a.Mul(q, q0.T())
	b.Mul(q0, q0.T())

	// F = (F*)^-T with F* = A·B^-1, folded into one solve: Aᵀ·F = Bᵀ.
	var f mat.Dense
	if err := f.Solve(a.T(), b.T()); err != nil {
		return nil, fmt.Errorf("%w: normal equations not solvable: %v", ErrSingularSystem, err)
	}
	return &f, nil
}

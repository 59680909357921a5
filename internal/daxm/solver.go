package daxm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Solver method names understood by SolverFor, the CLI, and the HTTP
// API.
const (
	MethodLeastSquares = "l2"
	MethodOptimization = "opt"
)

// GradientSolver recovers the real-space deformation gradient of a
// voxel from its paired scattering vectors and plane indices.
type GradientSolver interface {
	// DeformationGradient returns the 3x3 gradient F that maps the
	// strain-free lattice onto the measured one.
	DeformationGradient(v *Voxel) (*mat.Dense, error)
	// Method returns the short strategy name for logs and persistence.
	Method() string
}

// SolverFor returns the default-configured solver for a method name.
func SolverFor(method string) (GradientSolver, error) {
	switch method {
	case MethodLeastSquares:
		return DefaultLeastSquaresSolver(), nil
	case MethodOptimization:
		return DefaultOptimizationSolver(), nil
	default:
		return nil, fmt.Errorf("daxm: unknown solver method %q", method)
	}
}

// pairedColumns verifies that measured and predicted vectors are column
// aligned and returns the shared count.
func pairedColumns(q, q0 *mat.Dense) (int, error) {
	if q == nil || q0 == nil {
		return 0, fmt.Errorf("%w: paired scattering vectors required", ErrShapeMismatch)
	}
	_, n := q.Dims()
	_, m := q0.Dims()
	if n != m {
		return 0, fmt.Errorf("%w: %d measured vs %d predicted columns", ErrShapeMismatch, n, m)
	}
	return n, nil
}

// GradientMisfit evaluates the named misfit objective at an already
// solved gradient f, pairing columns the same way the solvers do. The
// score reports how well f explains the voxel's measurements, which
// makes it comparable across solver methods.
func GradientMisfit(reg *MisfitRegistry, objective string, f *mat.Dense, v *Voxel, cfg MisfitConfig) (float64, error) {
	if reg == nil {
		reg = DefaultMisfitRegistry()
	}
	def, ok := reg.Get(objective)
	if !ok {
		return 0, fmt.Errorf("daxm: unknown misfit objective %q", objective)
	}
	if v.ScatterVecs == nil {
		return 0, fmt.Errorf("%w: voxel has no scattering vectors", ErrShapeMismatch)
	}
	q0, err := StrainFreeVectors(v.RecipBase, v.Planes, v.ScatterVecs, cfg.UnitNormTol)
	if err != nil {
		return 0, err
	}
	if _, err := pairedColumns(v.ScatterVecs, q0); err != nil {
		return 0, err
	}

	// Misfits score the reciprocal perturbation, so recover F* - I from
	// F via F* = F^-T.
	var finv mat.Dense
	if err := finv.Inverse(f); err != nil {
		return 0, fmt.Errorf("%w: gradient not invertible", ErrSingularSystem)
	}
	delta := make([]float64, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			delta[3*i+j] = finv.At(j, i)
			if i == j {
				delta[3*i+j]--
			}
		}
	}
	return def.Score(delta, q0, v.ScatterVecs, cfg), nil
}

package daxm

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	// l1PenaltyWeight scales the quadratic penalty applied outside the
	// sum|delta| <= 9*Eps trust region.
	l1PenaltyWeight = 1e6
	// stallWindow is how many iterations the objective may stall within
	// Tol before the fit is declared converged.
	stallWindow = 50
)

// OptimizationSolver fits the reciprocal deformation gradient by
// derivative-free minimization of a registered misfit objective,
// starting from the identity gradient. The nine perturbation entries
// are kept inside an l1 trust region of 9*Eps, enforced as a quadratic
// exterior penalty. Slower than the closed-form strategy but tolerant
// of measurement noise, and the only strategy that can weigh angular
// and length residuals differently.
type OptimizationSolver struct {
	// Eps is the expected per-entry perturbation scale; the l1 budget
	// is 9*Eps. Zero disables the trust region.
	Eps float64
	// Tol is the absolute objective tolerance used to declare the fit
	// converged once progress stalls.
	Tol float64
	// MaxIterations caps the optimizer before it gives up; zero leaves
	// it uncapped and termination rests on Tol.
	MaxIterations int
	// Objective names the registered misfit to minimize; empty selects
	// the combined length-angle objective.
	Objective string
	// FullLengthTol and UnitNormTol are passed through to the misfit,
	// see MisfitConfig.
	FullLengthTol float64
	UnitNormTol   float64
	// Registry resolves objective names; nil means the built-ins.
	Registry *MisfitRegistry
}

// DefaultOptimizationSolver returns the solver with the standard
// tolerances and the combined length-angle objective.
func DefaultOptimizationSolver() *OptimizationSolver {
	return &OptimizationSolver{
		Eps:           1e-1,
		Tol:           1e-14,
		Objective:     MisfitLengthAngle,
		FullLengthTol: 1e-10,
		UnitNormTol:   1e-15,
	}
}

// Method implements GradientSolver.
func (s *OptimizationSolver) Method() string { return MethodOptimization }

// DeformationGradient implements GradientSolver. A fit that terminates
// without converging returns an *OptimizationError carrying the stall
// point; it never silently returns the unconverged gradient.
func (s *OptimizationSolver) DeformationGradient(v *Voxel) (*mat.Dense, error) {
	q := v.ScatterVecs
	q0, err := StrainFreeVectors(v.RecipBase, v.Planes, nil, 0)
	if err != nil {
		return nil, err
	}
	n, err := pairedColumns(q, q0)
	if err != nil {
		return nil, err
	}
	if n < 3 {
		return nil, fmt.Errorf("%w: need at least 3 paired vectors, got %d", ErrShapeMismatch, n)
	}

	name := s.Objective
	if name == "" {
		name = MisfitLengthAngle
	}
	reg := s.Registry
	if reg == nil {
		reg = DefaultMisfitRegistry()
	}
	def, ok := reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("daxm: no misfit objective %q registered", name)
	}

	cfg := MisfitConfig{FullLengthTol: s.FullLengthTol, UnitNormTol: s.UnitNormTol}
	budget := 9 * s.Eps
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			m := def.Score(x, q0, q, cfg)
			if s.Eps > 0 {
				if excess := floats.Norm(x, 1) - budget; excess > 0 {
					m += l1PenaltyWeight * excess * excess
				}
			}
			return m
		},
	}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{Absolute: s.Tol, Iterations: stallWindow},
	}
	if s.MaxIterations > 0 {
		settings.MajorIterations = s.MaxIterations
	}

	result, err := optimize.Minimize(problem, make([]float64, 9), settings, &optimize.NelderMead{})
	if err != nil {
		oe := &OptimizationError{Status: "error", Err: err}
		if result != nil {
			oe.Status = result.Status.String()
			oe.Value = result.F
			oe.Params = append([]float64(nil), result.X...)
		}
		return nil, oe
	}
	switch result.Status {
	case optimize.FunctionConvergence, optimize.MethodConverge, optimize.StepConvergence:
		// converged
	default:
		return nil, &OptimizationError{
			Status: result.Status.String(),
			Value:  result.F,
			Params: append([]float64(nil), result.X...),
		}
	}

	// F = (F*)^-T maps the reciprocal fit back to real space.
	fstar := perturbedGradient(result.X)
	var inv mat.Dense
	if err := inv.Inverse(fstar); err != nil {
		return nil, &OptimizationError{
			Status: "degenerate gradient",
			Value:  result.F,
			Params: append([]float64(nil), result.X...),
			Err:    err,
		}
	}
	var f mat.Dense
	f.CloneFrom(inv.T())
	return &f, nil
}

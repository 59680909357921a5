package daxm

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes callers are expected to branch
// on. Wrap with fmt.Errorf("%w: ...") so errors.Is keeps working after
// context is attached.
var (
	// ErrMissingIdentifier reports an archive operation attempted on a
	// voxel with an empty name.
	ErrMissingIdentifier = errors.New("daxm: voxel identifier required")

	// ErrNotFound reports a named voxel absent from the archive.
	ErrNotFound = errors.New("daxm: voxel not found")

	// ErrUnknownFrame reports a reference frame outside the registry.
	ErrUnknownFrame = errors.New("daxm: unknown reference frame")

	// ErrSingularSystem reports a non-invertible normal-equation system
	// in the closed-form deformation-gradient solver.
	ErrSingularSystem = errors.New("daxm: singular system")

	// ErrOptimizationFailed reports that the constrained fit terminated
	// without converging. The concrete error is an *OptimizationError.
	ErrOptimizationFailed = errors.New("daxm: optimization failed")

	// ErrShapeMismatch reports array dimensions that violate the voxel
	// column-count invariants.
	ErrShapeMismatch = errors.New("daxm: shape mismatch")
)

// OptimizationError carries the terminal state of a failed
// deformation-gradient fit so callers can log or inspect where the
// optimizer stalled. It matches ErrOptimizationFailed under errors.Is.
type OptimizationError struct {
	Status string    // optimizer termination status
	Value  float64   // objective value at termination
	Params []float64 // row-major perturbation entries at termination
	Err    error     // underlying optimizer error, if any
}

func (e *OptimizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("daxm: optimization failed (%s): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("daxm: optimization failed (%s): objective %g after stall", e.Status, e.Value)
}

// Is reports whether target is ErrOptimizationFailed, letting callers
// test with errors.Is without knowing the concrete type.
func (e *OptimizationError) Is(target error) bool {
	return target == ErrOptimizationFailed
}

func (e *OptimizationError) Unwrap() error { return e.Err }

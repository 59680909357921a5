package daxm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Deviatoric returns the volume-preserving part of a deformation
// gradient, (det F)^(-1/3) * F, which has unit determinant. A physical
// gradient preserves orientation, so a non-positive determinant is
// rejected rather than scaled.
func Deviatoric(f *mat.Dense) (*mat.Dense, error) {
	if r, c := f.Dims(); r != 3 || c != 3 {
		return nil, fmt.Errorf("%w: deformation gradient must be 3x3, got %dx%d", ErrShapeMismatch, r, c)
	}
	det := mat.Det(f)
	if det <= 0 {
		return nil, fmt.Errorf("%w: deformation gradient determinant %g, want positive", ErrSingularSystem, det)
	}
	out := mat.DenseCopyOf(f)
	out.Scale(1/math.Cbrt(det), out)
	return out, nil
}

// GreenLagrange returns the Green-Lagrange strain E = (FᵀF - I)/2.
func GreenLagrange(f *mat.Dense) (*mat.Dense, error) {
	if r, c := f.Dims(); r != 3 || c != 3 {
		return nil, fmt.Errorf("%w: deformation gradient must be 3x3, got %dx%d", ErrShapeMismatch, r, c)
	}
	var e mat.Dense
	e.Mul(f.T(), f)
	for i := 0; i < 3; i++ {
		e.Set(i, i, e.At(i, i)-1)
	}
	e.Scale(0.5, &e)
	return &e, nil
}

// FrobeniusDistance returns ||a-b||_F.
func FrobeniusDistance(a, b mat.Matrix) float64 {
	var d mat.Dense
	d.Sub(a, b)
	return mat.Norm(&d, 2)
}

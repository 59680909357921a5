package daxm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// StrainFreeVectors predicts the scattering vectors the strain-free
// lattice would produce: q0 = recipBase * planes, one column per Miller
// column.
//
// When measured is non-nil, columns of q0 whose measured counterpart
// was recorded unit length (| |q|-1 | <= unitTol) are normalized to
// unit length as well, so the two sets stay comparable column by
// column. measured must then have the same column count as planes.
func StrainFreeVectors(recipBase, planes, measured *mat.Dense, unitTol float64) (*mat.Dense, error) {
	if recipBase == nil || planes == nil {
		return nil, fmt.Errorf("%w: reciprocal basis and plane indices required", ErrShapeMismatch)
	}
	if r, c := recipBase.Dims(); r != 3 || c != 3 {
		return nil, fmt.Errorf("%w: reciprocal basis must be 3x3, got %dx%d", ErrShapeMismatch, r, c)
	}
	if r, _ := planes.Dims(); r != 3 {
		return nil, fmt.Errorf("%w: plane indices must have 3 rows, got %d", ErrShapeMismatch, r)
	}

	var q0 mat.Dense
	q0.Mul(recipBase, planes)
	if measured == nil {
		return &q0, nil
	}

	_, n := q0.Dims()
	if _, mn := measured.Dims(); mn != n {
		return nil, fmt.Errorf("%w: %d measured vectors for %d plane columns", ErrShapeMismatch, mn, n)
	}
	for j := 0; j < n; j++ {
		if math.Abs(colNorm(measured, j)-1) > unitTol {
			continue
		}
		col := column(&q0, j)
		if norm := floats.Norm(col, 2); norm > 0 {
			floats.Scale(1/norm, col)
			setColumn(&q0, j, col)
		}
	}
	return &q0, nil
}

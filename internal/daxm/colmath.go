package daxm

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Column-wise helpers shared by the pairing and solver code. All of
// them treat matrices as bundles of column vectors, which is how every
// voxel array is laid out.

// column extracts column j as a fresh slice.
func column(m mat.Matrix, j int) []float64 {
	return mat.Col(nil, j, m)
}

// colNorm returns the Euclidean norm of column j.
func colNorm(m mat.Matrix, j int) float64 {
	return floats.Norm(column(m, j), 2)
}

// setColumn writes xs into column j of dst.
func setColumn(dst *mat.Dense, j int, xs []float64) {
	for i, x := range xs {
		dst.Set(i, j, x)
	}
}

// unitColumns returns a copy of m with every nonzero column scaled to
// unit length. Zero columns are copied unchanged.
func unitColumns(m *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(m)
	_, n := out.Dims()
	for j := 0; j < n; j++ {
		col := column(out, j)
		if norm := floats.Norm(col, 2); norm > 0 {
			floats.Scale(1/norm, col)
			setColumn(out, j, col)
		}
	}
	return out
}

package daxm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PairByAngle reorders the measured scattering vectors to follow the
// plane-index columns. For every Miller column it predicts the
// strain-free direction recipBase*hkl and picks the measured vector
// closest in angle, i.e. the one with the largest cosine against the
// prediction. The matching peak columns are carried along so the
// detector bookkeeping stays aligned.
//
// The returned matrices are fresh 3xM and 2xM copies, one column per
// plane. A measured vector may be selected more than once when several
// planes point at it; under moderate strain the angular gaps between
// reflections keep the selection unambiguous. A nil planes matrix
// yields nil outputs.
func PairByAngle(scatter, peaks, planes, recipBase *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	if planes == nil {
		return nil, nil, nil
	}
	if scatter == nil {
		return nil, nil, fmt.Errorf("%w: no scattering vectors to pair", ErrShapeMismatch)
	}
	if recipBase == nil {
		return nil, nil, fmt.Errorf("%w: reciprocal basis required for pairing", ErrShapeMismatch)
	}
	if r, _ := scatter.Dims(); r != 3 {
		return nil, nil, fmt.Errorf("%w: scattering vectors must have 3 rows, got %d", ErrShapeMismatch, r)
	}
	_, n := scatter.Dims()
	if peaks != nil {
		pr, pn := peaks.Dims()
		if pr != 2 {
			return nil, nil, fmt.Errorf("%w: peaks must have 2 rows, got %d", ErrShapeMismatch, pr)
		}
		if pn != n {
			return nil, nil, fmt.Errorf("%w: %d peaks for %d scattering vectors", ErrShapeMismatch, pn, n)
		}
	}

	predicted, err := StrainFreeVectors(recipBase, planes, nil, 0)
	if err != nil {
		return nil, nil, err
	}
	qhat := unitColumns(scatter)
	phat := unitColumns(predicted)

	_, m := planes.Dims()
	outVecs := mat.NewDense(3, m, nil)
	var outPeaks *mat.Dense
	if peaks != nil {
		outPeaks = mat.NewDense(2, m, nil)
	}
	for i := 0; i < m; i++ {
		p := column(phat, i)
		best, bestCos := 0, math.Inf(-1)
		for j := 0; j < n; j++ {
			if cos := floats.Dot(p, column(qhat, j)); cos > bestCos {
				best, bestCos = j, cos
			}
		}
		setColumn(outVecs, i, column(scatter, best))
		if outPeaks != nil {
			setColumn(outPeaks, i, column(peaks, best))
		}
	}
	return outVecs, outPeaks, nil
}

// PairVectors reorders the voxel's scattering vectors and peaks in
// place to follow its plane-index columns, using PairByAngle. After a
// successful call ScatterVecs, Peaks, and Planes are column aligned.
func (v *Voxel) PairVectors() error {
	vecs, peaks, err := PairByAngle(v.ScatterVecs, v.Peaks, v.Planes, v.RecipBase)
	if err != nil {
		return err
	}
	v.ScatterVecs = vecs
	v.Peaks = peaks
	return nil
}

// PairingCosines reports the angular quality of an already paired
// voxel: for each column the cosine between the measured vector and the
// strain-free direction predicted by its plane index. Values near 1
// mean a clean match.
func PairingCosines(v *Voxel) ([]float64, error) {
	if v.Planes == nil {
		return nil, nil
	}
	if _, err := pairedColumns(v.ScatterVecs, v.Planes); err != nil {
		return nil, err
	}
	predicted, err := StrainFreeVectors(v.RecipBase, v.Planes, nil, 0)
	if err != nil {
		return nil, err
	}
	qhat := unitColumns(v.ScatterVecs)
	phat := unitColumns(predicted)
	_, n := qhat.Dims()
	cosines := make([]float64, n)
	for j := 0; j < n; j++ {
		cosines[j] = floats.Dot(column(qhat, j), column(phat, j))
	}
	return cosines, nil
}

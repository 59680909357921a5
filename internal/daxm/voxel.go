package daxm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Voxel is one probed volume of a DAXM reconstruction: the indexed
// scattering vectors recorded there, the Miller indices of the planes
// they were indexed to, the strain-free reciprocal basis, and the
// detector peaks the vectors were extracted from.
//
// ScatterVecs and Peaks are column-aligned: column j of each describes
// the same recorded reflection. Planes columns are lattice-frame Miller
// indices and do not rotate with the frame; Peaks live on the detector
// and do not rotate either. Matrices may be nil when nothing has been
// recorded yet.
type Voxel struct {
	Name         string
	Frame        Frame
	Coords       *mat.VecDense // probe position, 3-vector
	PatternImage string        // source Laue pattern, path or URL

	ScatterVecs *mat.Dense // 3xN indexed scattering vectors
	Planes      *mat.Dense // 3xM Miller indices (hkl per column)
	RecipBase   *mat.Dense // 3x3 strain-free reciprocal basis, columns a* b* c*
	Peaks       *mat.Dense // 2xN detector peak positions

	Depth            float64    // wire-scan reconstruction depth
	LatticeConstants [6]float64 // a, b, c, alpha, beta, gamma
}

// NewVoxel returns a voxel registered in the laboratory frame with a
// zero probe position and an identity reciprocal basis.
func NewVoxel(name string) *Voxel {
	return &Voxel{
		Name:      name,
		Frame:     FrameAPS,
		Coords:    mat.NewVecDense(3, nil),
		RecipBase: identity3(),
	}
}

// Clone returns a deep copy; mutating the copy leaves v untouched.
func (v *Voxel) Clone() *Voxel {
	c := *v
	if v.Coords != nil {
		c.Coords = mat.VecDenseCopyOf(v.Coords)
	}
	if v.ScatterVecs != nil {
		c.ScatterVecs = mat.DenseCopyOf(v.ScatterVecs)
	}
	if v.Planes != nil {
		c.Planes = mat.DenseCopyOf(v.Planes)
	}
	if v.RecipBase != nil {
		c.RecipBase = mat.DenseCopyOf(v.RecipBase)
	}
	if v.Peaks != nil {
		c.Peaks = mat.DenseCopyOf(v.Peaks)
	}
	return &c
}

// VectorCount returns the number of recorded scattering vectors.
func (v *Voxel) VectorCount() int {
	if v.ScatterVecs == nil {
		return 0
	}
	_, n := v.ScatterVecs.Dims()
	return n
}

// PlaneCount returns the number of indexed Miller columns.
func (v *Voxel) PlaneCount() int {
	if v.Planes == nil {
		return 0
	}
	_, n := v.Planes.Dims()
	return n
}

// Validate checks the voxel invariants: a registered frame, an
// invertible reciprocal basis, and the documented array shapes with
// ScatterVecs/Peaks agreeing on column count. Nil arrays are allowed.
func (v *Voxel) Validate() error {
	if _, ok := rotations[v.Frame]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFrame, v.Frame)
	}
	if v.Coords != nil && v.Coords.Len() != 3 {
		return fmt.Errorf("%w: coords must have 3 entries, got %d", ErrShapeMismatch, v.Coords.Len())
	}
	if v.RecipBase != nil {
		if r, c := v.RecipBase.Dims(); r != 3 || c != 3 {
			return fmt.Errorf("%w: reciprocal basis must be 3x3, got %dx%d", ErrShapeMismatch, r, c)
		}
		if mat.Det(v.RecipBase) == 0 {
			return fmt.Errorf("%w: reciprocal basis is not invertible", ErrSingularSystem)
		}
	}
	if v.ScatterVecs != nil {
		if r, _ := v.ScatterVecs.Dims(); r != 3 {
			return fmt.Errorf("%w: scattering vectors must have 3 rows, got %d", ErrShapeMismatch, r)
		}
	}
	if v.Planes != nil {
		if r, _ := v.Planes.Dims(); r != 3 {
			return fmt.Errorf("%w: plane indices must have 3 rows, got %d", ErrShapeMismatch, r)
		}
	}
	if v.Peaks != nil {
		if r, _ := v.Peaks.Dims(); r != 2 {
			return fmt.Errorf("%w: peaks must have 2 rows, got %d", ErrShapeMismatch, r)
		}
	}
	if nv, np := v.VectorCount(), v.peakCount(); nv != np {
		return fmt.Errorf("%w: %d scattering vectors but %d peaks", ErrShapeMismatch, nv, np)
	}
	return nil
}

func (v *Voxel) peakCount() int {
	if v.Peaks == nil {
		return 0
	}
	_, n := v.Peaks.Dims()
	return n
}

// ToFrame re-expresses the voxel in the target frame, rotating the probe
// coordinates, the scattering vectors, and the reciprocal basis, and
// recording the new frame on the voxel. Miller indices and detector
// peaks are frame invariant and stay put. Converting to the current
// frame is a no-op. On an unknown frame the voxel is left unmodified.
func (v *Voxel) ToFrame(target Frame) error {
	if target == v.Frame {
		return nil
	}
	g, err := Rotation(target, v.Frame)
	if err != nil {
		return err
	}
	if v.Coords != nil {
		var c mat.VecDense
		c.MulVec(g, v.Coords)
		v.Coords = &c
	}
	if v.ScatterVecs != nil {
		var s mat.Dense
		s.Mul(g, v.ScatterVecs)
		v.ScatterVecs = &s
	}
	if v.RecipBase != nil {
		var b mat.Dense
		b.Mul(g, v.RecipBase)
		v.RecipBase = &b
	}
	v.Frame = target
	return nil
}

// InFrame returns a copy of the voxel expressed in the target frame,
// leaving v untouched.
func (v *Voxel) InFrame(target Frame) (*Voxel, error) {
	c := v.Clone()
	if err := c.ToFrame(target); err != nil {
		return nil, err
	}
	return c, nil
}

package daxm

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// testVoxel returns a small fully-populated voxel in the laboratory
// frame with distinct entries everywhere, handy for spotting any field
// a conversion touched that it should not have.
func testVoxel() *Voxel {
	return &Voxel{
		Name:         "grain1_z0",
		Frame:        FrameAPS,
		Coords:       mat.NewVecDense(3, []float64{1, 2, 3}),
		PatternImage: "scans/grain1_z0.tif",
		ScatterVecs: mat.NewDense(3, 4, []float64{
			1.0, 0.1, 0.0, 0.4,
			0.0, 1.1, 0.2, 0.5,
			0.1, 0.0, 1.2, 0.6,
		}),
		Planes: mat.NewDense(3, 4, []float64{
			1, 0, 0, 1,
			0, 1, 0, 1,
			0, 0, 1, 1,
		}),
		RecipBase: mat.NewDense(3, 3, []float64{
			2.1, 0.0, 0.0,
			0.0, 2.1, 0.0,
			0.0, 0.0, 2.1,
		}),
		Peaks: mat.NewDense(2, 4, []float64{
			10, 20, 30, 40,
			11, 21, 31, 41,
		}),
		Depth:            4.5,
		LatticeConstants: [6]float64{0.3, 0.3, 0.3, 90, 90, 90},
	}
}

func matNear(t *testing.T, name string, got, want mat.Matrix, tol float64) {
	t.Helper()
	gr, gc := got.Dims()
	wr, wc := want.Dims()
	if gr != wr || gc != wc {
		t.Fatalf("%s: dims %dx%d, want %dx%d", name, gr, gc, wr, wc)
	}
	if !mat.EqualApprox(got, want, tol) {
		t.Errorf("%s differs beyond %g:\ngot:\n%v\nwant:\n%v", name, tol,
			mat.Formatted(got), mat.Formatted(want))
	}
}

func TestToFrameRotatesAndRecordsFrame(t *testing.T) {
	v := testVoxel()
	orig := v.Clone()

	if err := v.ToFrame(FrameTSL); err != nil {
		t.Fatalf("ToFrame(TSL): %v", err)
	}
	if v.Frame != FrameTSL {
		t.Errorf("Frame = %s, want TSL", v.Frame)
	}

	g, err := Rotation(FrameTSL, FrameAPS)
	if err != nil {
		t.Fatalf("Rotation: %v", err)
	}
	var wantCoords mat.VecDense
	wantCoords.MulVec(g, orig.Coords)
	matNear(t, "coords", v.Coords, &wantCoords, 1e-12)

	var wantVecs, wantBase mat.Dense
	wantVecs.Mul(g, orig.ScatterVecs)
	wantBase.Mul(g, orig.RecipBase)
	matNear(t, "scatter vectors", v.ScatterVecs, &wantVecs, 1e-12)
	matNear(t, "reciprocal basis", v.RecipBase, &wantBase, 1e-12)

	// Miller indices and detector peaks are frame invariant.
	if !mat.Equal(v.Planes, orig.Planes) {
		t.Error("plane indices changed during frame conversion")
	}
	if !mat.Equal(v.Peaks, orig.Peaks) {
		t.Error("detector peaks changed during frame conversion")
	}
	if v.Depth != orig.Depth || v.PatternImage != orig.PatternImage {
		t.Error("scalar fields changed during frame conversion")
	}
}

func TestToFrameSelfIsNoOp(t *testing.T) {
	v := testVoxel()
	orig := v.Clone()
	if err := v.ToFrame(FrameAPS); err != nil {
		t.Fatalf("ToFrame(APS): %v", err)
	}
	if !mat.Equal(v.ScatterVecs, orig.ScatterVecs) || !mat.Equal(v.Coords, orig.Coords) {
		t.Error("converting to the current frame modified the voxel")
	}
}

func TestToFrameRoundTrip(t *testing.T) {
	for _, target := range []Frame{FrameTSL, FrameXHF} {
		v := testVoxel()
		orig := v.Clone()
		if err := v.ToFrame(target); err != nil {
			t.Fatalf("ToFrame(%s): %v", target, err)
		}
		if err := v.ToFrame(FrameAPS); err != nil {
			t.Fatalf("ToFrame(APS): %v", err)
		}
		matNear(t, "coords after APS->"+string(target)+"->APS", v.Coords, orig.Coords, 1e-12)
		matNear(t, "scatter vectors after round trip", v.ScatterVecs, orig.ScatterVecs, 1e-12)
		matNear(t, "reciprocal basis after round trip", v.RecipBase, orig.RecipBase, 1e-12)
	}
}

func TestToFrameUnknownFrameLeavesVoxelUnmodified(t *testing.T) {
	v := testVoxel()
	orig := v.Clone()
	err := v.ToFrame(Frame("ESRF"))
	if !errors.Is(err, ErrUnknownFrame) {
		t.Fatalf("got err %v, want ErrUnknownFrame", err)
	}
	if v.Frame != orig.Frame {
		t.Errorf("Frame = %s, want %s", v.Frame, orig.Frame)
	}
	if !mat.Equal(v.Coords, orig.Coords) || !mat.Equal(v.ScatterVecs, orig.ScatterVecs) ||
		!mat.Equal(v.RecipBase, orig.RecipBase) {
		t.Error("failed conversion left partial mutation behind")
	}
}

func TestInFrameLeavesReceiverUntouched(t *testing.T) {
	v := testVoxel()
	orig := v.Clone()

	conv, err := v.InFrame(FrameXHF)
	if err != nil {
		t.Fatalf("InFrame(XHF): %v", err)
	}
	if conv.Frame != FrameXHF {
		t.Errorf("converted Frame = %s, want XHF", conv.Frame)
	}
	if v.Frame != FrameAPS || !mat.Equal(v.ScatterVecs, orig.ScatterVecs) {
		t.Error("InFrame modified the receiver")
	}
	if mat.Equal(conv.ScatterVecs, orig.ScatterVecs) {
		t.Error("InFrame(XHF) returned unrotated scatter vectors")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	v := testVoxel()
	c := v.Clone()
	c.ScatterVecs.Set(0, 0, 99)
	c.Coords.SetVec(0, 99)
	c.Name = "other"
	if v.ScatterVecs.At(0, 0) == 99 || v.Coords.AtVec(0) == 99 || v.Name == "other" {
		t.Error("mutating a clone reached the original")
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Voxel)
		wantErr error
	}{
		{"valid", func(v *Voxel) {}, nil},
		{"nil arrays", func(v *Voxel) {
			v.ScatterVecs, v.Planes, v.Peaks = nil, nil, nil
		}, nil},
		{"unregistered frame", func(v *Voxel) {
			v.Frame = Frame("ESRF")
		}, ErrUnknownFrame},
		{"coords wrong length", func(v *Voxel) {
			v.Coords = mat.NewVecDense(2, []float64{1, 2})
		}, ErrShapeMismatch},
		{"recip base not 3x3", func(v *Voxel) {
			v.RecipBase = mat.NewDense(2, 3, nil)
		}, ErrShapeMismatch},
		{"recip base singular", func(v *Voxel) {
			v.RecipBase = mat.NewDense(3, 3, []float64{
				1, 0, 0,
				0, 1, 0,
				1, 1, 0,
			})
		}, ErrSingularSystem},
		{"scatter vectors wrong rows", func(v *Voxel) {
			v.ScatterVecs = mat.NewDense(2, 4, nil)
		}, ErrShapeMismatch},
		{"planes wrong rows", func(v *Voxel) {
			v.Planes = mat.NewDense(4, 4, nil)
		}, ErrShapeMismatch},
		{"peaks wrong rows", func(v *Voxel) {
			v.Peaks = mat.NewDense(3, 4, nil)
		}, ErrShapeMismatch},
		{"peak count mismatch", func(v *Voxel) {
			v.Peaks = mat.NewDense(2, 3, nil)
		}, ErrShapeMismatch},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := testVoxel()
			tc.mutate(v)
			err := v.Validate()
			if tc.wantErr == nil && err != nil {
				t.Errorf("Validate: unexpected error %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("Validate: got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestVectorAndPlaneCounts(t *testing.T) {
	v := testVoxel()
	if got := v.VectorCount(); got != 4 {
		t.Errorf("VectorCount = %d, want 4", got)
	}
	if got := v.PlaneCount(); got != 4 {
		t.Errorf("PlaneCount = %d, want 4", got)
	}
	empty := NewVoxel("empty")
	if empty.VectorCount() != 0 || empty.PlaneCount() != 0 {
		t.Error("fresh voxel should report zero vectors and planes")
	}
}

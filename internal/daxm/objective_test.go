package daxm

import (
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// misfitFixture builds a 5-column synthetic with a known perturbation,
// the first two measured columns renormalized to unit length.
func misfitFixture() (delta []float64, q0, q *mat.Dense) {
	delta = []float64{
		0.001, -0.002, 0.0005,
		0.002, 0.001, -0.001,
		-0.0015, 0.0005, 0.002,
	}
	q0 = mat.NewDense(3, 5, []float64{
		1.5, 0.0, 0.0, 1.0, -1.0,
		0.0, 1.3, 0.0, 1.0, 0.5,
		0.0, 0.0, 1.6, 1.0, 1.2,
	})
	q = perturbedVectors(delta, q0)
	for j := 0; j < 2; j++ {
		col := column(q, j)
		floats.Scale(1/floats.Norm(col, 2), col)
		setColumn(q, j, col)
	}
	return delta, q0, q
}

func TestMisfitsVanishAtTruth(t *testing.T) {
	delta, q0, q := misfitFixture()
	cfg := MisfitConfig{FullLengthTol: 1e-10, UnitNormTol: 1e-15}

	for _, tc := range []struct {
		name  string
		score func([]float64, *mat.Dense, *mat.Dense, MisfitConfig) float64
	}{
		{MisfitLengthAngle, lengthAngleMisfit},
		{MisfitCosine, cosineMisfit},
		{MisfitEuclid, euclidMisfit},
	} {
		t.Run(tc.name, func(t *testing.T) {
			atTruth := tc.score(delta, q0, q, cfg)
			if atTruth > 1e-10 {
				t.Errorf("misfit at the generating perturbation = %g, want ~0", atTruth)
			}
			atZero := tc.score(make([]float64, 9), q0, q, cfg)
			if atZero <= atTruth {
				t.Errorf("misfit at zero (%g) should exceed misfit at truth (%g)", atZero, atTruth)
			}
		})
	}
}

func TestLengthAngleMisfitIgnoresUnitColumnLengths(t *testing.T) {
	delta, q0, q := misfitFixture()
	cfg := MisfitConfig{FullLengthTol: 1e-10, UnitNormTol: 1e-15}

	// Scaling a unit-recorded measured column must not change the
	// length term; scaling a full-length column must.
	base := lengthAngleMisfit(delta, q0, q, cfg)

	stretchedFull := mat.DenseCopyOf(q)
	col := column(stretchedFull, 4)
	floats.Scale(1.05, col)
	setColumn(stretchedFull, 4, col)
	if got := lengthAngleMisfit(delta, q0, stretchedFull, cfg); got <= base {
		t.Errorf("stretching a full-length column left the misfit at %g (base %g)", got, base)
	}
}

func TestPerturbedGradientLayout(t *testing.T) {
	delta := make([]float64, 9)
	delta[1] = 0.5  // row 0, column 1
	delta[3] = -0.2 // row 1, column 0
	f := perturbedGradient(delta)

	if got := f.At(0, 1); got != 0.5 {
		t.Errorf("entry (0,1) = %g, want 0.5", got)
	}
	if got := f.At(1, 0); got != -0.2 {
		t.Errorf("entry (1,0) = %g, want -0.2", got)
	}
	for i := 0; i < 3; i++ {
		if got := f.At(i, i); got != 1 {
			t.Errorf("diagonal (%d,%d) = %g, want 1", i, i, got)
		}
	}
}

func TestMisfitRegistryDefaults(t *testing.T) {
	reg := DefaultMisfitRegistry()

	infos := reg.List()
	if len(infos) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(infos))
	}
	wantOrder := []string{MisfitCosine, MisfitEuclid, MisfitLengthAngle}
	for i, want := range wantOrder {
		if infos[i].Name != want {
			t.Errorf("List[%d] = %q, want %q", i, infos[i].Name, want)
		}
	}

	if _, ok := reg.Get(MisfitLengthAngle); !ok {
		t.Error("default registry is missing the length-angle misfit")
	}
	if _, ok := reg.Get("bogus"); ok {
		t.Error("Get returned a definition for an unregistered name")
	}
}

func TestMisfitRegistryReplace(t *testing.T) {
	reg := NewMisfitRegistry()
	reg.Register(&MisfitDefinition{Name: "custom", Description: "first"})
	reg.Register(&MisfitDefinition{Name: "custom", Description: "second"})

	def, ok := reg.Get("custom")
	if !ok {
		t.Fatal("registered misfit not found")
	}
	if def.Description != "second" {
		t.Errorf("Description = %q, want the replacement", def.Description)
	}
	if got := len(reg.List()); got != 1 {
		t.Errorf("List returned %d entries, want 1", got)
	}
}

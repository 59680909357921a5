package voxeldb

import (
	"errors"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/daxm-data/strain.report/internal/daxm"
)

// newTestDB opens a fresh archive in a temp directory with the embedded
// schema applied.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "voxels.db"))
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// sampleVoxel builds a voxel with every field populated so round trips
// exercise the full row.
func sampleVoxel(name string) *daxm.Voxel {
	v := daxm.NewVoxel(name)
	v.Coords = mat.NewVecDense(3, []float64{1.5, -2.0, 0.25})
	v.PatternImage = "scan_00042.h5"
	v.ScatterVecs = mat.NewDense(3, 2, []float64{
		1.9, 0.1,
		0.2, 2.1,
		0.3, -0.4,
	})
	v.Planes = mat.NewDense(3, 2, []float64{
		1, 0,
		0, 1,
		0, 0,
	})
	v.RecipBase.Scale(2.1, v.RecipBase)
	v.Peaks = mat.NewDense(2, 2, []float64{
		512.5, 140.25,
		800.0, 655.75,
	})
	v.Depth = 12.5
	v.LatticeConstants = [6]float64{4.05, 4.05, 4.05, 90, 90, 90}
	return v
}

func TestVoxelStoreSaveLoadRoundTrip(t *testing.T) {
	db := newTestDB(t)
	store := NewVoxelStore(db.DB)

	v := sampleVoxel("vx_0_0_0")
	status, err := store.Save(v)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if status != daxm.StatusNew {
		t.Errorf("Save() status = %q, want %q", status, daxm.StatusNew)
	}

	got, err := store.Load("vx_0_0_0")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got.Name != v.Name {
		t.Errorf("Name = %q, want %q", got.Name, v.Name)
	}
	if got.Frame != v.Frame {
		t.Errorf("Frame = %q, want %q", got.Frame, v.Frame)
	}
	if got.PatternImage != v.PatternImage {
		t.Errorf("PatternImage = %q, want %q", got.PatternImage, v.PatternImage)
	}
	if got.Depth != v.Depth {
		t.Errorf("Depth = %v, want %v", got.Depth, v.Depth)
	}
	if got.LatticeConstants != v.LatticeConstants {
		t.Errorf("LatticeConstants = %v, want %v", got.LatticeConstants, v.LatticeConstants)
	}
	if !mat.EqualApprox(got.Coords, v.Coords, 1e-12) {
		t.Errorf("Coords = %v, want %v", got.Coords, v.Coords)
	}
	for _, m := range []struct {
		name      string
		got, want *mat.Dense
	}{
		{"ScatterVecs", got.ScatterVecs, v.ScatterVecs},
		{"Planes", got.Planes, v.Planes},
		{"RecipBase", got.RecipBase, v.RecipBase},
		{"Peaks", got.Peaks, v.Peaks},
	} {
		if !mat.EqualApprox(m.got, m.want, 1e-12) {
			t.Errorf("%s = %v, want %v", m.name, mat.Formatted(m.got), mat.Formatted(m.want))
		}
	}
}

func TestVoxelStoreSaveStatusTransitions(t *testing.T) {
	db := newTestDB(t)
	store := NewVoxelStore(db.DB)

	v := sampleVoxel("vx_1_2_3")
	status, err := store.Save(v)
	if err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	if status != daxm.StatusNew {
		t.Errorf("first Save() status = %q, want %q", status, daxm.StatusNew)
	}

	v.Depth = 99.0
	status, err = store.Save(v)
	if err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	if status != daxm.StatusUpdated {
		t.Errorf("second Save() status = %q, want %q", status, daxm.StatusUpdated)
	}

	got, err := store.Load("vx_1_2_3")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Depth != 99.0 {
		t.Errorf("Depth after update = %v, want 99.0", got.Depth)
	}
}

func TestVoxelStoreSaveRequiresName(t *testing.T) {
	db := newTestDB(t)
	store := NewVoxelStore(db.DB)

	v := daxm.NewVoxel("")
	if _, err := store.Save(v); !errors.Is(err, daxm.ErrMissingIdentifier) {
		t.Errorf("Save() error = %v, want ErrMissingIdentifier", err)
	}
}

func TestVoxelStoreSaveRejectsInvalidShapes(t *testing.T) {
	db := newTestDB(t)
	store := NewVoxelStore(db.DB)

	v := daxm.NewVoxel("bad")
	v.ScatterVecs = mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	if _, err := store.Save(v); !errors.Is(err, daxm.ErrShapeMismatch) {
		t.Errorf("Save() error = %v, want ErrShapeMismatch", err)
	}
}

func TestVoxelStoreLoadMissing(t *testing.T) {
	db := newTestDB(t)
	store := NewVoxelStore(db.DB)

	if _, err := store.Load("no-such-voxel"); !errors.Is(err, daxm.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestVoxelStoreMinimalVoxelRoundTrip(t *testing.T) {
	db := newTestDB(t)
	store := NewVoxelStore(db.DB)

	v := daxm.NewVoxel("bare")
	if _, err := store.Save(v); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load("bare")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.ScatterVecs != nil || got.Planes != nil || got.Peaks != nil {
		t.Errorf("absent arrays should stay nil, got scatter=%v planes=%v peaks=%v",
			got.ScatterVecs, got.Planes, got.Peaks)
	}
	if !mat.EqualApprox(got.RecipBase, v.RecipBase, 1e-12) {
		t.Errorf("RecipBase = %v, want identity", mat.Formatted(got.RecipBase))
	}
}

func TestVoxelStoreList(t *testing.T) {
	db := newTestDB(t)
	store := NewVoxelStore(db.DB)

	for _, name := range []string{"vx_b", "vx_a", "vx_c"} {
		if _, err := store.Save(sampleVoxel(name)); err != nil {
			t.Fatalf("Save(%q) error = %v", name, err)
		}
	}

	sums, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sums) != 3 {
		t.Fatalf("List() returned %d rows, want 3", len(sums))
	}
	wantOrder := []string{"vx_a", "vx_b", "vx_c"}
	for i, want := range wantOrder {
		if sums[i].Name != want {
			t.Errorf("List()[%d].Name = %q, want %q", i, sums[i].Name, want)
		}
	}
	if sums[0].VectorCount != 2 || sums[0].PlaneCount != 2 {
		t.Errorf("counts = (%d, %d), want (2, 2)", sums[0].VectorCount, sums[0].PlaneCount)
	}
	if sums[0].Frame != string(daxm.FrameAPS) {
		t.Errorf("Frame = %q, want %q", sums[0].Frame, daxm.FrameAPS)
	}
	if sums[0].CreatedAt == 0 || sums[0].UpdatedAt == 0 {
		t.Error("timestamps should be set on save")
	}
}

func TestVoxelStoreListEmpty(t *testing.T) {
	db := newTestDB(t)
	store := NewVoxelStore(db.DB)

	sums, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sums) != 0 {
		t.Errorf("List() on empty archive returned %d rows", len(sums))
	}
}

func TestVoxelStoreDelete(t *testing.T) {
	db := newTestDB(t)
	store := NewVoxelStore(db.DB)

	if _, err := store.Save(sampleVoxel("vx_gone")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete("vx_gone"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load("vx_gone"); !errors.Is(err, daxm.ErrNotFound) {
		t.Errorf("Load() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete("vx_gone"); !errors.Is(err, daxm.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestVoxelStoreDeleteCascadesStrainRuns(t *testing.T) {
	db := newTestDB(t)
	store := NewVoxelStore(db.DB)
	strains := NewStrainStore(db.DB)

	if _, err := store.Save(sampleVoxel("vx_runs")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	run := &StrainRun{
		VoxelName:  "vx_runs",
		Method:     daxm.MethodLeastSquares,
		Frame:      string(daxm.FrameAPS),
		Gradient:   [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		Deviatoric: [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	}
	if err := strains.Insert(run); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if err := store.Delete("vx_runs"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	runs, err := strains.ListByVoxel("vx_runs")
	if err != nil {
		t.Fatalf("ListByVoxel() error = %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("strain runs survived voxel delete: %d rows", len(runs))
	}
}

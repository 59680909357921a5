package report

import (
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/daxm-data/strain.report/internal/daxm/voxeldb"
)

func newTestReporter(t *testing.T) (*Reporter, *http.ServeMux, *voxeldb.DB) {
	t.Helper()
	db, err := voxeldb.New(filepath.Join(t.TempDir(), "voxels.db"))
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rp := NewReporter(db)
	mux := http.NewServeMux()
	rp.AttachRoutes(mux)
	return rp, mux, db
}

func get(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestPeakChart(t *testing.T) {
	rp, mux, _ := newTestReporter(t)
	if _, err := rp.voxels.Save(plottableVoxel("voxel-010")); err != nil {
		t.Fatalf("failed to save voxel: %v", err)
	}

	w := get(t, mux, "/report/voxels/voxel-010/peaks")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "echarts") {
		t.Error("response does not look like an echarts page")
	}
	if !strings.Contains(body, "voxel-010") {
		t.Error("response does not mention the voxel")
	}
}

func TestPeakChartMissing(t *testing.T) {
	rp, mux, _ := newTestReporter(t)

	if w := get(t, mux, "/report/voxels/ghost/peaks"); w.Code != http.StatusNotFound {
		t.Errorf("missing voxel: status = %d, want 404", w.Code)
	}

	v := plottableVoxel("voxel-011")
	v.Peaks = nil
	if _, err := rp.voxels.Save(v); err != nil {
		t.Fatalf("failed to save voxel: %v", err)
	}
	if w := get(t, mux, "/report/voxels/voxel-011/peaks"); w.Code != http.StatusNotFound {
		t.Errorf("peakless voxel: status = %d, want 404", w.Code)
	}
}

func TestRunHistoryChart(t *testing.T) {
	rp, mux, _ := newTestReporter(t)
	v := plottableVoxel("voxel-012")
	if _, err := rp.voxels.Save(v); err != nil {
		t.Fatalf("failed to save voxel: %v", err)
	}
	for _, createdAt := range []int64{100, 200} {
		run := &voxeldb.StrainRun{
			VoxelName: "voxel-012",
			Method:    "l2",
			Frame:     "APS",
			Gradient: [][]float64{
				{1.001, 0, 0},
				{0, 0.999, 0},
				{0, 0, 1},
			},
			Deviatoric: [][]float64{
				{1, 0, 0},
				{0, 1, 0},
				{0, 0, 1},
			},
			CreatedAt: createdAt,
		}
		if err := rp.strains.Insert(run); err != nil {
			t.Fatalf("failed to insert run: %v", err)
		}
	}

	w := get(t, mux, "/report/voxels/voxel-012/runs")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Strain Run History") {
		t.Error("response does not look like the run history chart")
	}
}

func TestRunHistoryChartNoRuns(t *testing.T) {
	_, mux, _ := newTestReporter(t)
	if w := get(t, mux, "/report/voxels/ghost/runs"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestVoxelDashboard(t *testing.T) {
	rp, mux, _ := newTestReporter(t)
	if _, err := rp.voxels.Save(plottableVoxel("voxel-013")); err != nil {
		t.Fatalf("failed to save voxel: %v", err)
	}

	w := get(t, mux, "/report/voxels/voxel-013")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	for _, frag := range []string{"/report/voxels/voxel-013/peaks", "/report/voxels/voxel-013/runs"} {
		if !strings.Contains(body, frag) {
			t.Errorf("dashboard missing iframe for %s", frag)
		}
	}

	if w := get(t, mux, "/report/voxels/ghost"); w.Code != http.StatusNotFound {
		t.Errorf("missing voxel: status = %d, want 404", w.Code)
	}
}

func TestGradientDeviation(t *testing.T) {
	identity := [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	if d := gradientDeviation(identity); d != 0 {
		t.Errorf("identity deviation = %g, want 0", d)
	}

	sheared := [][]float64{{1, 3e-3, 0}, {0, 1, 0}, {0, 0, 1}}
	if d := gradientDeviation(sheared); math.Abs(d-3e-3) > 1e-15 {
		t.Errorf("shear deviation = %g, want 3e-3", d)
	}
}

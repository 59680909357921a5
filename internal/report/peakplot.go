package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/daxm-data/strain.report/internal/daxm"
)

const (
	peakMapPNG  = "detector_peaks.png"
	residualPNG = "angular_residuals.png"
)

var (
	peakColor     = color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 255}
	residualColor = color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 255}
)

// PeakPlotter writes PNG plots for solved voxels. Each call gets a
// fresh timestamped directory, e.g. plots/voxel-001/20260825_143000/.
type PeakPlotter struct {
	baseDir string
}

func NewPeakPlotter(baseDir string) *PeakPlotter {
	return &PeakPlotter{baseDir: baseDir}
}

func (pp *PeakPlotter) BaseDir() string { return pp.baseDir }

// WriteRunPlots renders the detector peak map and, when f and the
// paired planes allow it, the per-column angular residual plot. It
// returns the directory the PNGs were written to.
func (pp *PeakPlotter) WriteRunPlots(v *daxm.Voxel, f *mat.Dense) (string, error) {
	if v.Peaks == nil && (f == nil || v.Planes == nil) {
		return "", fmt.Errorf("voxel %q has nothing to plot", v.Name)
	}

	dir := filepath.Join(pp.baseDir, v.Name, time.Now().UTC().Format("20060102_150405"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create plot output dir: %w", err)
	}

	if v.Peaks != nil {
		if err := pp.plotPeakMap(v, dir); err != nil {
			return "", err
		}
	}
	if f != nil && v.Planes != nil {
		if err := pp.plotAngularResiduals(v, f, dir); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func (pp *PeakPlotter) plotPeakMap(v *daxm.Voxel, dir string) error {
	_, n := v.Peaks.Dims()
	pts := make(plotter.XYs, 0, n)
	for j := 0; j < n; j++ {
		pts = append(pts, plotter.XY{X: v.Peaks.At(0, j), Y: v.Peaks.At(1, j)})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Detector peaks: %s", v.Name)
	p.X.Label.Text = "X (px)"
	p.Y.Label.Text = "Y (px)"

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to build peak scatter: %w", err)
	}
	scatter.GlyphStyle.Color = peakColor
	scatter.GlyphStyle.Radius = vg.Points(3)
	p.Add(scatter)
	p.Legend.Add(fmt.Sprintf("%d peaks", n), scatter)
	p.Legend.Top = true
	p.Legend.XOffs = -10

	if err := p.Save(8*vg.Inch, 8*vg.Inch, filepath.Join(dir, peakMapPNG)); err != nil {
		return fmt.Errorf("failed to save peak map: %w", err)
	}
	return nil
}

func (pp *PeakPlotter) plotAngularResiduals(v *daxm.Voxel, f *mat.Dense, dir string) error {
	angles, err := angularResiduals(v, f)
	if err != nil {
		return err
	}

	pts := make(plotter.XYs, 0, len(angles))
	for j, a := range angles {
		pts = append(pts, plotter.XY{X: float64(j), Y: a})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Angular residuals: %s", v.Name)
	p.X.Label.Text = "column"
	p.Y.Label.Text = "residual (deg)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build residual line: %w", err)
	}
	line.Color = residualColor
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("measured vs predicted", line)
	p.Legend.Top = true
	p.Legend.XOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, filepath.Join(dir, residualPNG)); err != nil {
		return fmt.Errorf("failed to save residual plot: %w", err)
	}
	return nil
}

// angularResiduals is the angle, in degrees, between each measured
// scattering vector and the direction predicted by the solved gradient.
func angularResiduals(v *daxm.Voxel, f *mat.Dense) ([]float64, error) {
	q0, err := daxm.StrainFreeVectors(v.RecipBase, v.Planes, nil, 0)
	if err != nil {
		return nil, err
	}
	var finv mat.Dense
	if err := finv.Inverse(f); err != nil {
		return nil, fmt.Errorf("gradient not invertible: %w", err)
	}
	var pred mat.Dense
	pred.Mul(finv.T(), q0)

	_, n := v.ScatterVecs.Dims()
	if _, pn := pred.Dims(); pn != n {
		return nil, fmt.Errorf("%d planes for %d scattering vectors: %w", pn, n, daxm.ErrShapeMismatch)
	}

	angles := make([]float64, n)
	meas, pcol := make([]float64, 3), make([]float64, 3)
	for j := 0; j < n; j++ {
		for i := 0; i < 3; i++ {
			meas[i] = v.ScatterVecs.At(i, j)
			pcol[i] = pred.At(i, j)
		}
		cos := floats.Dot(meas, pcol) / (floats.Norm(meas, 2) * floats.Norm(pcol, 2))
		if cos > 1 {
			cos = 1
		} else if cos < -1 {
			cos = -1
		}
		angles[j] = math.Acos(cos) * 180 / math.Pi
	}
	return angles, nil
}

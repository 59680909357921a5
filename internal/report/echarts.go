// Package report renders visual summaries of archived voxels: browser
// charts for quick inspection and PNG plots for run artifacts.
package report

import (
	"bytes"
	"fmt"
	"html"
	"math"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/daxm-data/strain.report/internal/daxm/voxeldb"
	"github.com/daxm-data/strain.report/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisRamp colours scatter points by a third value dimension.
var viridisRamp = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// Reporter serves debugging charts for archived voxels.
type Reporter struct {
	voxels  *voxeldb.VoxelStore
	strains *voxeldb.StrainStore
}

func NewReporter(db *voxeldb.DB) *Reporter {
	return &Reporter{
		voxels:  voxeldb.NewVoxelStore(db.DB),
		strains: voxeldb.NewStrainStore(db.DB),
	}
}

// AttachRoutes mounts the report pages on mux.
func (rp *Reporter) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /report/voxels/{name}", rp.handleVoxelDashboard)
	mux.HandleFunc("GET /report/voxels/{name}/peaks", rp.handlePeakChart)
	mux.HandleFunc("GET /report/voxels/{name}/runs", rp.handleRunHistoryChart)
}

// handlePeakChart renders the detector peak positions of a voxel,
// coloured by the magnitude of the matching scattering vector.
func (rp *Reporter) handlePeakChart(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	v, err := rp.voxels.Load(name)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("voxel %q not found", name))
		return
	}
	if v.Peaks == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "voxel has no detector peaks")
		return
	}

	_, n := v.Peaks.Dims()
	data := make([]opts.ScatterData, 0, n)
	maxAbs, maxMag := 0.0, 0.0
	for j := 0; j < n; j++ {
		x, y := v.Peaks.At(0, j), v.Peaks.At(1, j)
		if math.Abs(x) > maxAbs {
			maxAbs = math.Abs(x)
		}
		if math.Abs(y) > maxAbs {
			maxAbs = math.Abs(y)
		}

		mag := 0.0
		if v.ScatterVecs != nil {
			if _, qn := v.ScatterVecs.Dims(); j < qn {
				for i := 0; i < 3; i++ {
					mag += v.ScatterVecs.At(i, j) * v.ScatterVecs.At(i, j)
				}
				mag = math.Sqrt(mag)
			}
		}
		if mag > maxMag {
			maxMag = mag
		}
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, mag}})
	}

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	if maxMag == 0 {
		maxMag = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Detector Peaks", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Detector Peaks", Subtitle: fmt.Sprintf("voxel=%s frame=%s peaks=%d", v.Name, v.Frame, n)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxMag),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisRamp},
		}),
	)
	scatter.AddSeries("peaks", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleRunHistoryChart renders the strain magnitude of every recorded
// solve for a voxel, newest runs on the right.
func (rp *Reporter) handleRunHistoryChart(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	runs, err := rp.strains.ListByVoxel(name)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list strain runs: %v", err))
		return
	}
	if len(runs) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no strain runs recorded for voxel")
		return
	}

	// ListByVoxel is newest first; reverse for a left-to-right timeline.
	labels := make([]string, 0, len(runs))
	points := make([]opts.LineData, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		labels = append(labels, time.Unix(0, run.CreatedAt).UTC().Format("01-02 15:04:05"))
		points = append(points, opts.LineData{Value: gradientDeviation(run.Gradient)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Strain Run History", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Strain Run History", Subtitle: fmt.Sprintf("voxel=%s runs=%d |F-I| per solve", name, len(runs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "|F - I|"}),
	)
	line.SetXAxis(labels).AddSeries("strain magnitude", points,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleVoxelDashboard renders a simple dashboard with iframes to the
// voxel's charts.
func (rp *Reporter) handleVoxelDashboard(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := rp.voxels.Load(name); err != nil {
		httputil.WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("voxel %q not found", name))
		return
	}

	safe := html.EscapeString(name)
	doc := fmt.Sprintf(voxelDashboardHTML, safe, safe, safe)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

// gradientDeviation is the Frobenius distance of a stored gradient from
// the identity, a scalar strain magnitude for trend plots.
func gradientDeviation(gradient [][]float64) float64 {
	var sum float64
	for i, row := range gradient {
		for j, x := range row {
			d := x
			if i == j {
				d--
			}
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}

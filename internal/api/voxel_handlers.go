package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/daxm-data/strain.report/internal/daxm"
	"github.com/daxm-data/strain.report/internal/daxm/voxeldb"
	"github.com/daxm-data/strain.report/internal/httputil"
)

// httpStatusFor maps domain errors onto HTTP statuses: absent names are
// 404, malformed inputs 400, measurements the solvers cannot digest 422.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, daxm.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, daxm.ErrMissingIdentifier),
		errors.Is(err, daxm.ErrShapeMismatch),
		errors.Is(err, daxm.ErrUnknownFrame):
		return http.StatusBadRequest
	case errors.Is(err, daxm.ErrSingularSystem),
		errors.Is(err, daxm.ErrOptimizationFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	httputil.WriteJSONError(w, httpStatusFor(err), err.Error())
}

func (s *Server) listVoxels(w http.ResponseWriter, r *http.Request) {
	sums, err := s.voxels.List()
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list voxels: %v", err))
		return
	}
	if sums == nil {
		sums = []daxm.VoxelSummary{}
	}
	httputil.WriteJSONOK(w, sums)
}

func (s *Server) saveVoxel(w http.ResponseWriter, r *http.Request) {
	var rec daxm.VoxelRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid voxel payload: %v", err))
		return
	}
	v, err := daxm.VoxelFromRecord(rec)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status, err := s.voxels.Save(v)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"name":   v.Name,
		"status": string(status),
	})
}

func (s *Server) getVoxel(w http.ResponseWriter, r *http.Request) {
	v, err := s.voxels.Load(r.PathValue("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSONOK(w, v.Record())
}

func (s *Server) deleteVoxel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.voxels.Delete(name); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"name":   name,
		"status": "deleted",
	})
}

func (s *Server) convertVoxel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Frame string `json:"frame"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid convert payload: %v", err))
		return
	}
	if body.Frame == "" {
		httputil.WriteJSONError(w, http.StatusBadRequest, "Missing 'frame' in request body")
		return
	}
	frame, err := daxm.ParseFrame(body.Frame)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	v, err := s.voxels.Load(r.PathValue("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := v.ToFrame(frame); err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := s.voxels.Save(v); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSONOK(w, v.Record())
}

func (s *Server) pairVoxel(w http.ResponseWriter, r *http.Request) {
	v, err := s.voxels.Load(r.PathValue("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := v.PairVectors(); err != nil {
		writeDomainError(w, err)
		return
	}
	cosines, err := daxm.PairingCosines(v)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := s.voxels.Save(v); err != nil {
		writeDomainError(w, err)
		return
	}
	if cosines == nil {
		cosines = []float64{}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"name":     v.Name,
		"n_paired": len(cosines),
		"cosines":  cosines,
	})
}

type strainRequest struct {
	Method    string  `json:"method"`
	Objective string  `json:"objective"`
	Eps       float64 `json:"eps"`
}

type strainResponse struct {
	RunID         string      `json:"run_id"`
	VoxelName     string      `json:"voxel_name"`
	Method        string      `json:"method"`
	Objective     string      `json:"objective"`
	Frame         string      `json:"ref_frame"`
	Eps           float64     `json:"eps,omitempty"`
	Gradient      [][]float64 `json:"gradient"`
	Deviatoric    [][]float64 `json:"deviatoric"`
	GreenLagrange [][]float64 `json:"green_lagrange"`
	Residual      float64     `json:"residual"`
	CreatedAt     int64       `json:"created_at"`
}

func (s *Server) solveStrain(w http.ResponseWriter, r *http.Request) {
	var req strainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid strain payload: %v", err))
		return
	}
	if req.Method == "" {
		req.Method = daxm.MethodLeastSquares
	}
	solver, err := daxm.SolverFor(req.Method)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	objective := req.Objective
	if objective == "" {
		objective = daxm.MisfitLengthAngle
	}
	if _, ok := s.registry.Get(objective); !ok {
		httputil.WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Unknown objective %q", objective))
		return
	}
	cfg := daxm.MisfitConfig{}
	runEps := 0.0
	if opt, ok := solver.(*daxm.OptimizationSolver); ok {
		opt.Objective = objective
		opt.Registry = s.registry
		if req.Eps > 0 {
			opt.Eps = req.Eps
		}
		runEps = opt.Eps
		cfg.FullLengthTol = opt.FullLengthTol
		cfg.UnitNormTol = opt.UnitNormTol
	} else {
		defaults := daxm.DefaultOptimizationSolver()
		cfg.FullLengthTol = defaults.FullLengthTol
		cfg.UnitNormTol = defaults.UnitNormTol
	}

	v, err := s.voxels.Load(r.PathValue("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	f, err := solver.DeformationGradient(v)
	if err != nil {
		var oe *daxm.OptimizationError
		if errors.As(err, &oe) {
			httputil.WriteJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":  oe.Error(),
				"status": oe.Status,
				"value":  oe.Value,
			})
			return
		}
		writeDomainError(w, err)
		return
	}

	dev, err := daxm.Deviatoric(f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	green, err := daxm.GreenLagrange(f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	residual, err := daxm.GradientMisfit(s.registry, objective, f, v, cfg)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	run := &voxeldb.StrainRun{
		VoxelName:  v.Name,
		Method:     solver.Method(),
		Objective:  objective,
		Frame:      string(v.Frame),
		Eps:        runEps,
		Gradient:   daxm.MatrixRows(f),
		Deviatoric: daxm.MatrixRows(dev),
		Residual:   residual,
	}
	if err := s.strains.Insert(run); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to record strain run: %v", err))
		return
	}

	httputil.WriteJSONOK(w, strainResponse{
		RunID:         run.RunID,
		VoxelName:     run.VoxelName,
		Method:        run.Method,
		Objective:     run.Objective,
		Frame:         run.Frame,
		Eps:           run.Eps,
		Gradient:      run.Gradient,
		Deviatoric:    run.Deviatoric,
		GreenLagrange: daxm.MatrixRows(green),
		Residual:      run.Residual,
		CreatedAt:     run.CreatedAt,
	})
}

func (s *Server) listStrainRuns(w http.ResponseWriter, r *http.Request) {
	voxel := r.URL.Query().Get("voxel")
	if voxel == "" {
		httputil.WriteJSONError(w, http.StatusBadRequest, "Missing 'voxel' query parameter")
		return
	}
	runs, err := s.strains.ListByVoxel(voxel)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list strain runs: %v", err))
		return
	}
	if runs == nil {
		runs = []*voxeldb.StrainRun{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) listObjectives(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.registry.List())
}

package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/daxm-data/strain.report/internal/daxm"
	"github.com/daxm-data/strain.report/internal/daxm/voxeldb"
)

// ANSI escape codes for request log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the voxel archive and the strain solvers over HTTP.
type Server struct {
	db       *voxeldb.DB
	voxels   *voxeldb.VoxelStore
	strains  *voxeldb.StrainStore
	registry *daxm.MisfitRegistry
}

func NewServer(db *voxeldb.DB) *Server {
	return &Server{
		db:       db,
		voxels:   voxeldb.NewVoxelStore(db.DB),
		strains:  voxeldb.NewStrainStore(db.DB),
		registry: daxm.DefaultMisfitRegistry(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux routes the voxel API. Method-qualified patterns answer 405
// for mismatched methods on their own.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/voxels", s.listVoxels)
	mux.HandleFunc("POST /api/voxels", s.saveVoxel)
	mux.HandleFunc("GET /api/voxels/{name}", s.getVoxel)
	mux.HandleFunc("DELETE /api/voxels/{name}", s.deleteVoxel)
	mux.HandleFunc("POST /api/voxels/{name}/convert", s.convertVoxel)
	mux.HandleFunc("POST /api/voxels/{name}/pair", s.pairVoxel)
	mux.HandleFunc("POST /api/voxels/{name}/strain", s.solveStrain)
	mux.HandleFunc("GET /api/strain-runs", s.listStrainRuns)
	mux.HandleFunc("GET /api/objectives", s.listObjectives)
	return mux
}

package daxm

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Built-in misfit objective names.
const (
	// MisfitLengthAngle is the default combined objective: root sum of
	// squared direction residuals plus root sum of squared log length
	// ratios over full-length columns.
	MisfitLengthAngle = "length-angle"
	// MisfitCosine sums 1-cos(angle) over paired columns.
	MisfitCosine = "cosine"
	// MisfitEuclid averages the Euclidean column distance.
	MisfitEuclid = "euclid"
)

// MisfitConfig carries the tolerances a misfit may consult when
// deciding how a column was recorded.
type MisfitConfig struct {
	// FullLengthTol: measured columns with | |q|-1 | above this carry
	// physical length information.
	FullLengthTol float64
	// UnitNormTol: measured columns within this of unit length had the
	// length discarded at recording time.
	UnitNormTol float64
}

// MisfitDefinition describes a registered misfit objective module.
type MisfitDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Score evaluates a candidate reciprocal perturbation. delta holds
	// the nine row-major entries of F*-I, q0 the strain-free vectors,
	// q the measured ones, column aligned.
	Score func(delta []float64, q0, q *mat.Dense, cfg MisfitConfig) float64
}

// MisfitRegistry holds registered misfit definitions.
type MisfitRegistry struct {
	mu      sync.RWMutex
	misfits map[string]*MisfitDefinition
}

// MisfitInfo is a summary of a registered misfit objective.
type MisfitInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NewMisfitRegistry creates a new empty misfit registry.
func NewMisfitRegistry() *MisfitRegistry {
	return &MisfitRegistry{misfits: make(map[string]*MisfitDefinition)}
}

// Register adds a misfit definition to the registry. If one with the
// same name already exists, it is replaced.
func (r *MisfitRegistry) Register(def *MisfitDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misfits[def.Name] = def
}

// Get retrieves a misfit definition by name.
// Returns nil and false if the misfit is not found.
func (r *MisfitRegistry) Get(name string) (*MisfitDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.misfits[name]
	return def, ok
}

// List returns summaries of all registered misfits, sorted by name for
// deterministic output.
func (r *MisfitRegistry) List() []MisfitInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]MisfitInfo, 0, len(r.misfits))
	for _, def := range r.misfits {
		infos = append(infos, MisfitInfo{Name: def.Name, Description: def.Description})
	}
	for i := 0; i < len(infos)-1; i++ {
		for j := i + 1; j < len(infos); j++ {
			if infos[i].Name > infos[j].Name {
				infos[i], infos[j] = infos[j], infos[i]
			}
		}
	}
	return infos
}

// DefaultMisfitRegistry returns a registry pre-loaded with the built-in
// misfit objectives.
func DefaultMisfitRegistry() *MisfitRegistry {
	reg := NewMisfitRegistry()

	reg.Register(&MisfitDefinition{
		Name: MisfitLengthAngle,
		Description: "Combined direction and length misfit: root sum of squared " +
			"unit-vector residuals plus root sum of squared log length ratios " +
			"over full-length columns. The standard objective.",
		Score: lengthAngleMisfit,
	})
	reg.Register(&MisfitDefinition{
		Name:        MisfitCosine,
		Description: "Pure angular misfit: sum of 1-cos(angle) between measured and estimated columns.",
		Score:       cosineMisfit,
	})
	reg.Register(&MisfitDefinition{
		Name: MisfitEuclid,
		Description: "Mean Euclidean column distance between measured and estimated " +
			"vectors, with estimates renormalized for unit-recorded columns.",
		Score: euclidMisfit,
	})
	return reg
}

// perturbedGradient reshapes the nine delta entries row-major into the
// candidate reciprocal gradient F* = I + delta.
func perturbedGradient(delta []float64) *mat.Dense {
	f := mat.NewDense(3, 3, append([]float64(nil), delta...))
	for i := 0; i < 3; i++ {
		f.Set(i, i, f.At(i, i)+1)
	}
	return f
}

// perturbedVectors applies the candidate gradient to the strain-free
// vectors: est = (I + delta) * q0.
func perturbedVectors(delta []float64, q0 *mat.Dense) *mat.Dense {
	var est mat.Dense
	est.Mul(perturbedGradient(delta), q0)
	return &est
}

func lengthAngleMisfit(delta []float64, q0, q *mat.Dense, cfg MisfitConfig) float64 {
	est := perturbedVectors(delta, q0)
	_, n := q.Dims()

	var angular float64
	for j := 0; j < n; j++ {
		qn, en := colNorm(q, j), colNorm(est, j)
		if qn == 0 || en == 0 {
			return math.Inf(1)
		}
		for i := 0; i < 3; i++ {
			d := est.At(i, j)/en - q.At(i, j)/qn
			angular += d * d
		}
	}

	var length float64
	for j := 0; j < n; j++ {
		qn := colNorm(q, j)
		if math.Abs(qn-1) <= cfg.FullLengthTol {
			continue // length was discarded at recording time
		}
		en := colNorm(est, j)
		if en <= 0 {
			return math.Inf(1)
		}
		r := math.Log(en / qn)
		length += r * r
	}
	return math.Sqrt(angular) + math.Sqrt(length)
}

func cosineMisfit(delta []float64, q0, q *mat.Dense, _ MisfitConfig) float64 {
	est := unitColumns(perturbedVectors(delta, q0))
	qhat := unitColumns(q)
	_, n := q.Dims()
	var sum float64
	for j := 0; j < n; j++ {
		sum += 1 - floats.Dot(column(est, j), column(qhat, j))
	}
	return sum
}

func euclidMisfit(delta []float64, q0, q *mat.Dense, cfg MisfitConfig) float64 {
	est := perturbedVectors(delta, q0)
	_, n := q.Dims()
	var sum float64
	for j := 0; j < n; j++ {
		e := column(est, j)
		if math.Abs(colNorm(q, j)-1) <= cfg.UnitNormTol {
			if norm := floats.Norm(e, 2); norm > 0 {
				floats.Scale(1/norm, e)
			}
		}
		floats.Sub(e, column(q, j))
		sum += floats.Norm(e, 2)
	}
	return sum / float64(n)
}

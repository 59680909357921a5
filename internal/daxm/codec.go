package daxm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// VoxelRecord is the wire and archive form of a Voxel. Field names
// follow the beamline dataset names so exported files line up with the
// acquisition tooling. Matrices are row slices; empty arrays are
// omitted entirely.
type VoxelRecord struct {
	Name             string      `json:"name"`
	Frame            string      `json:"ref_frame"`
	Coords           []float64   `json:"coords"`
	PatternImage     string      `json:"pattern_image,omitempty"`
	ScatterVecs      [][]float64 `json:"scatter_vec,omitempty"`
	Planes           [][]float64 `json:"plane,omitempty"`
	RecipBase        [][]float64 `json:"recip_base,omitempty"`
	Peaks            [][]float64 `json:"peak,omitempty"`
	Depth            float64     `json:"depth"`
	LatticeConstants []float64   `json:"lattice_constant,omitempty"`
}

// MatrixRows flattens a matrix into one slice per row. Nil stays nil.
func MatrixRows(m *mat.Dense) [][]float64 {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		rows[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			rows[i][j] = m.At(i, j)
		}
	}
	return rows
}

// MatrixFromRows rebuilds a dense matrix from row slices. Nil input,
// no rows, or rows without columns yield nil; ragged rows are a shape
// error.
func MatrixFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, nil
	}
	r, c := len(rows), len(rows[0])
	out := mat.NewDense(r, c, nil)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShapeMismatch, i, len(row), c)
		}
		for j, x := range row {
			out.Set(i, j, x)
		}
	}
	return out, nil
}

// Record converts the voxel to its wire form.
func (v *Voxel) Record() VoxelRecord {
	rec := VoxelRecord{
		Name:         v.Name,
		Frame:        string(v.Frame),
		PatternImage: v.PatternImage,
		ScatterVecs:  MatrixRows(v.ScatterVecs),
		Planes:       MatrixRows(v.Planes),
		RecipBase:    MatrixRows(v.RecipBase),
		Peaks:        MatrixRows(v.Peaks),
		Depth:        v.Depth,
	}
	if v.Coords != nil {
		rec.Coords = make([]float64, v.Coords.Len())
		for i := range rec.Coords {
			rec.Coords[i] = v.Coords.AtVec(i)
		}
	}
	if v.LatticeConstants != ([6]float64{}) {
		rec.LatticeConstants = append([]float64(nil), v.LatticeConstants[:]...)
	}
	return rec
}

// VoxelFromRecord rebuilds a voxel from its wire form and validates it.
// An empty frame defaults to the laboratory frame.
func VoxelFromRecord(rec VoxelRecord) (*Voxel, error) {
	v := &Voxel{
		Name:         rec.Name,
		Frame:        FrameAPS,
		PatternImage: rec.PatternImage,
		Depth:        rec.Depth,
	}
	if rec.Frame != "" {
		frame, err := ParseFrame(rec.Frame)
		if err != nil {
			return nil, err
		}
		v.Frame = frame
	}

	switch len(rec.Coords) {
	case 0:
		v.Coords = mat.NewVecDense(3, nil)
	case 3:
		v.Coords = mat.NewVecDense(3, append([]float64(nil), rec.Coords...))
	default:
		return nil, fmt.Errorf("%w: coords must have 3 entries, got %d", ErrShapeMismatch, len(rec.Coords))
	}

	var err error
	if v.ScatterVecs, err = MatrixFromRows(rec.ScatterVecs); err != nil {
		return nil, fmt.Errorf("scatter_vec: %w", err)
	}
	if v.Planes, err = MatrixFromRows(rec.Planes); err != nil {
		return nil, fmt.Errorf("plane: %w", err)
	}
	if v.RecipBase, err = MatrixFromRows(rec.RecipBase); err != nil {
		return nil, fmt.Errorf("recip_base: %w", err)
	}
	if v.RecipBase == nil {
		v.RecipBase = identity3()
	}
	if v.Peaks, err = MatrixFromRows(rec.Peaks); err != nil {
		return nil, fmt.Errorf("peak: %w", err)
	}

	switch len(rec.LatticeConstants) {
	case 0:
	case 6:
		copy(v.LatticeConstants[:], rec.LatticeConstants)
	default:
		return nil, fmt.Errorf("%w: lattice_constant must have 6 entries, got %d", ErrShapeMismatch, len(rec.LatticeConstants))
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

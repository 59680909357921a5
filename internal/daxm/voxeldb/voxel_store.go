package voxeldb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/daxm-data/strain.report/internal/daxm"
)

// VoxelStore persists voxels in the archive. It implements daxm.Archive.
type VoxelStore struct {
	db *sql.DB
}

// NewVoxelStore creates a new VoxelStore.
func NewVoxelStore(db *sql.DB) *VoxelStore {
	return &VoxelStore{db: db}
}

// Save upserts the voxel under its name and reports whether the name
// was new to the archive or overwrote an existing row. The voxel must
// carry a name and pass shape validation.
func (s *VoxelStore) Save(v *daxm.Voxel) (daxm.SaveStatus, error) {
	if v.Name == "" {
		return "", fmt.Errorf("save voxel: %w", daxm.ErrMissingIdentifier)
	}
	if err := v.Validate(); err != nil {
		return "", fmt.Errorf("save voxel %q: %w", v.Name, err)
	}

	rec := v.Record()
	if rec.Coords == nil {
		rec.Coords = []float64{0, 0, 0}
	}
	coordsStr, err := json.Marshal(rec.Coords)
	if err != nil {
		return "", fmt.Errorf("marshal coords: %w", err)
	}
	scatterStr, err := jsonColumn(rec.ScatterVecs)
	if err != nil {
		return "", fmt.Errorf("marshal scatter_vec: %w", err)
	}
	planeStr, err := jsonColumn(rec.Planes)
	if err != nil {
		return "", fmt.Errorf("marshal plane: %w", err)
	}
	baseStr, err := jsonColumn(rec.RecipBase)
	if err != nil {
		return "", fmt.Errorf("marshal recip_base: %w", err)
	}
	peakStr, err := jsonColumn(rec.Peaks)
	if err != nil {
		return "", fmt.Errorf("marshal peak: %w", err)
	}
	var latticeStr interface{}
	if rec.LatticeConstants != nil {
		b, err := json.Marshal(rec.LatticeConstants)
		if err != nil {
			return "", fmt.Errorf("marshal lattice_constant: %w", err)
		}
		latticeStr = string(b)
	}

	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM voxels WHERE name = ?)`, v.Name).Scan(&exists); err != nil {
		return "", fmt.Errorf("check voxel %q: %w", v.Name, err)
	}

	now := time.Now().UnixNano()
	err = retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO voxels (
				name, ref_frame, coords, pattern_image,
				scatter_vec, plane, recip_base, peak,
				depth, lattice_constant, n_scatter_vec, n_plane,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				ref_frame = excluded.ref_frame,
				coords = excluded.coords,
				pattern_image = excluded.pattern_image,
				scatter_vec = excluded.scatter_vec,
				plane = excluded.plane,
				recip_base = excluded.recip_base,
				peak = excluded.peak,
				depth = excluded.depth,
				lattice_constant = excluded.lattice_constant,
				n_scatter_vec = excluded.n_scatter_vec,
				n_plane = excluded.n_plane,
				updated_at = excluded.updated_at`,
			rec.Name, rec.Frame, string(coordsStr), rec.PatternImage,
			scatterStr, planeStr, baseStr, peakStr,
			rec.Depth, latticeStr, v.VectorCount(), v.PlaneCount(),
			now, now,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("save voxel %q: %w", v.Name, err)
	}

	if exists {
		return daxm.StatusUpdated, nil
	}
	return daxm.StatusNew, nil
}

// Load returns the voxel stored under name.
func (s *VoxelStore) Load(name string) (*daxm.Voxel, error) {
	row := s.db.QueryRow(`
		SELECT name, ref_frame, coords, pattern_image,
		       scatter_vec, plane, recip_base, peak,
		       depth, lattice_constant
		FROM voxels
		WHERE name = ?`, name)

	var rec daxm.VoxelRecord
	var coordsStr string
	var scatterStr, planeStr, baseStr, peakStr, latticeStr sql.NullString
	err := row.Scan(
		&rec.Name, &rec.Frame, &coordsStr, &rec.PatternImage,
		&scatterStr, &planeStr, &baseStr, &peakStr,
		&rec.Depth, &latticeStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("voxel %q: %w", name, daxm.ErrNotFound)
		}
		return nil, fmt.Errorf("scan voxel %q: %w", name, err)
	}

	if err := json.Unmarshal([]byte(coordsStr), &rec.Coords); err != nil {
		return nil, fmt.Errorf("unmarshal coords: %w", err)
	}
	if rec.ScatterVecs, err = rowsColumn(scatterStr); err != nil {
		return nil, fmt.Errorf("unmarshal scatter_vec: %w", err)
	}
	if rec.Planes, err = rowsColumn(planeStr); err != nil {
		return nil, fmt.Errorf("unmarshal plane: %w", err)
	}
	if rec.RecipBase, err = rowsColumn(baseStr); err != nil {
		return nil, fmt.Errorf("unmarshal recip_base: %w", err)
	}
	if rec.Peaks, err = rowsColumn(peakStr); err != nil {
		return nil, fmt.Errorf("unmarshal peak: %w", err)
	}
	if latticeStr.Valid {
		if err := json.Unmarshal([]byte(latticeStr.String), &rec.LatticeConstants); err != nil {
			return nil, fmt.Errorf("unmarshal lattice_constant: %w", err)
		}
	}

	return daxm.VoxelFromRecord(rec)
}

// List returns a summary row for every voxel, ordered by name.
func (s *VoxelStore) List() ([]daxm.VoxelSummary, error) {
	rows, err := s.db.Query(`
		SELECT name, ref_frame, n_scatter_vec, n_plane, depth, created_at, updated_at
		FROM voxels
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query voxels: %w", err)
	}
	defer rows.Close()

	var out []daxm.VoxelSummary
	for rows.Next() {
		var sum daxm.VoxelSummary
		if err := rows.Scan(&sum.Name, &sum.Frame, &sum.VectorCount, &sum.PlaneCount, &sum.Depth, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan voxel summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes the voxel stored under name along with its strain runs.
func (s *VoxelStore) Delete(name string) error {
	return retryOnBusy(func() error {
		if _, err := s.db.Exec(`DELETE FROM strain_runs WHERE voxel_name = ?`, name); err != nil {
			return fmt.Errorf("delete strain runs for %q: %w", name, err)
		}
		result, err := s.db.Exec(`DELETE FROM voxels WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("delete voxel %q: %w", name, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("voxel %q: %w", name, daxm.ErrNotFound)
		}
		return nil
	})
}

// jsonColumn marshals matrix rows for a nullable text column. Nil rows
// map to SQL NULL so absent arrays stay distinguishable from empty ones.
func jsonColumn(rows [][]float64) (interface{}, error) {
	if rows == nil {
		return nil, nil
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// rowsColumn is the inverse of jsonColumn.
func rowsColumn(col sql.NullString) ([][]float64, error) {
	if !col.Valid {
		return nil, nil
	}
	var rows [][]float64
	if err := json.Unmarshal([]byte(col.String), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

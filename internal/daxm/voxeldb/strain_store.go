package voxeldb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/daxm-data/strain.report/internal/daxm"
)

// StrainRun records one deformation gradient solve for a voxel: which
// solver produced it, the frame the inputs were expressed in, the
// resulting tensors as row slices, and how well the fit closed. Eps is
// zero for the closed-form method, which has no trust region.
type StrainRun struct {
	RunID      string      `json:"run_id"`
	VoxelName  string      `json:"voxel_name"`
	Method     string      `json:"method"`
	Objective  string      `json:"objective,omitempty"`
	Frame      string      `json:"ref_frame"`
	Eps        float64     `json:"eps,omitempty"`
	Gradient   [][]float64 `json:"gradient"`
	Deviatoric [][]float64 `json:"deviatoric"`
	Residual   float64     `json:"residual"`
	CreatedAt  int64       `json:"created_at"`
}

// StrainStore provides persistence for strain solve results.
type StrainStore struct {
	db *sql.DB
}

// NewStrainStore creates a new StrainStore.
func NewStrainStore(db *sql.DB) *StrainStore {
	return &StrainStore{db: db}
}

// Insert persists a new strain run. If RunID is empty, a UUID is
// generated; if CreatedAt is zero, the current time is recorded.
func (s *StrainStore) Insert(run *StrainRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	gradStr, err := json.Marshal(run.Gradient)
	if err != nil {
		return fmt.Errorf("marshal gradient: %w", err)
	}
	devStr, err := json.Marshal(run.Deviatoric)
	if err != nil {
		return fmt.Errorf("marshal deviatoric: %w", err)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO strain_runs (
				run_id, voxel_name, method, objective, ref_frame, eps,
				gradient, deviatoric, residual, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.VoxelName, run.Method, run.Objective, run.Frame, run.Eps,
			string(gradStr), string(devStr), run.Residual, run.CreatedAt,
		)
		return err
	})
}

// ListByVoxel returns all strain runs for a voxel, newest first.
func (s *StrainStore) ListByVoxel(voxelName string) ([]*StrainRun, error) {
	rows, err := s.db.Query(`
		SELECT run_id, voxel_name, method, objective, ref_frame, eps,
		       gradient, deviatoric, residual, created_at
		FROM strain_runs
		WHERE voxel_name = ?
		ORDER BY created_at DESC`, voxelName)
	if err != nil {
		return nil, fmt.Errorf("query strain runs: %w", err)
	}
	defer rows.Close()

	var runs []*StrainRun
	for rows.Next() {
		run, err := scanStrainRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns a single strain run by ID.
func (s *StrainStore) Get(runID string) (*StrainRun, error) {
	row := s.db.QueryRow(`
		SELECT run_id, voxel_name, method, objective, ref_frame, eps,
		       gradient, deviatoric, residual, created_at
		FROM strain_runs
		WHERE run_id = ?`, runID)

	var run StrainRun
	var gradStr, devStr string
	err := row.Scan(
		&run.RunID, &run.VoxelName, &run.Method, &run.Objective, &run.Frame, &run.Eps,
		&gradStr, &devStr, &run.Residual, &run.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("strain run %q: %w", runID, daxm.ErrNotFound)
		}
		return nil, fmt.Errorf("scan strain run: %w", err)
	}
	if err := unmarshalTensors(&run, gradStr, devStr); err != nil {
		return nil, err
	}
	return &run, nil
}

// Delete removes a strain run by ID.
func (s *StrainStore) Delete(runID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM strain_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete strain run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("strain run %q: %w", runID, daxm.ErrNotFound)
		}
		return nil
	})
}

func scanStrainRun(rows *sql.Rows) (*StrainRun, error) {
	var run StrainRun
	var gradStr, devStr string
	err := rows.Scan(
		&run.RunID, &run.VoxelName, &run.Method, &run.Objective, &run.Frame, &run.Eps,
		&gradStr, &devStr, &run.Residual, &run.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan strain run row: %w", err)
	}
	if err := unmarshalTensors(&run, gradStr, devStr); err != nil {
		return nil, err
	}
	return &run, nil
}

func unmarshalTensors(run *StrainRun, gradStr, devStr string) error {
	if err := json.Unmarshal([]byte(gradStr), &run.Gradient); err != nil {
		return fmt.Errorf("unmarshal gradient: %w", err)
	}
	if err := json.Unmarshal([]byte(devStr), &run.Deviatoric); err != nil {
		return fmt.Errorf("unmarshal deviatoric: %w", err)
	}
	return nil
}

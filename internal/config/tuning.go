// Package config loads optional solver tuning overrides from JSON
// files. Fields left out of the file keep the solver defaults, so a
// tuning file only needs to name what it changes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SolverTuning represents a strain solver tuning file. All fields are
// pointers so partial configs are safe: a nil field means "use the
// solver's built-in default" rather than zero.
type SolverTuning struct {
	// Column classification tolerances
	UnitNormTol   *float64 `json:"unit_norm_tol,omitempty"`
	FullLengthTol *float64 `json:"full_length_tol,omitempty"`

	// Optimization solver params
	Eps           *float64 `json:"eps,omitempty"`
	Tol           *float64 `json:"tol,omitempty"`
	MaxIterations *int     `json:"max_iterations,omitempty"`

	// Objective selection
	Objective *string `json:"objective,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptySolverTuning returns a SolverTuning with all fields set to nil.
// Use LoadSolverTuning to load actual values from a file.
func EmptySolverTuning() *SolverTuning {
	return &SolverTuning{}
}

// LoadSolverTuning loads a SolverTuning from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file stay nil, so
// partial configs are safe.
func LoadSolverTuning(path string) (*SolverTuning, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySolverTuning()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *SolverTuning) Validate() error {
	if c.UnitNormTol != nil && *c.UnitNormTol < 0 {
		return fmt.Errorf("unit_norm_tol must be non-negative, got %g", *c.UnitNormTol)
	}
	if c.FullLengthTol != nil && *c.FullLengthTol < 0 {
		return fmt.Errorf("full_length_tol must be non-negative, got %g", *c.FullLengthTol)
	}
	if c.Eps != nil && *c.Eps <= 0 {
		return fmt.Errorf("eps must be positive, got %g", *c.Eps)
	}
	if c.Tol != nil && *c.Tol <= 0 {
		return fmt.Errorf("tol must be positive, got %g", *c.Tol)
	}
	if c.MaxIterations != nil && *c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be non-negative, got %d", *c.MaxIterations)
	}
	if c.Objective != nil && *c.Objective == "" {
		return fmt.Errorf("objective must not be empty when set")
	}
	return nil
}

// GetObjective returns the objective name or the default.
func (c *SolverTuning) GetObjective() string {
	if c.Objective == nil {
		return "length-angle" // default
	}
	return *c.Objective
}

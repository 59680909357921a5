package daxm

// SaveStatus reports what an archive save did: a voxel stored under a
// fresh name is new, overwriting an existing name is updated.
type SaveStatus string

const (
	StatusNew     SaveStatus = "new"
	StatusUpdated SaveStatus = "updated"
)

// VoxelSummary is the listing row an archive returns without loading
// full array payloads.
type VoxelSummary struct {
	Name        string  `json:"name"`
	Frame       string  `json:"ref_frame"`
	VectorCount int     `json:"n_scatter_vec"`
	PlaneCount  int     `json:"n_plane"`
	Depth       float64 `json:"depth"`
	CreatedAt   int64   `json:"created_at"`
	UpdatedAt   int64   `json:"updated_at"`
}

// Archive is the persistence collaborator voxels are written to and
// read from. Implementations validate shapes on save and return
// ErrMissingIdentifier for unnamed voxels and ErrNotFound for absent
// names.
type Archive interface {
	Save(v *Voxel) (SaveStatus, error)
	Load(name string) (*Voxel, error)
	List() ([]VoxelSummary, error)
	Delete(name string) error
}

package models

// Volume is a removable storage device reported by the worker. Path is the
// identity key; everything else is descriptive. Volumes are not persisted
// across application restarts.
type Volume struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Capacity  int64  `json:"capacity"`
	FreeSpace int64  `json:"free_space"`
	FileCount int    `json:"file_count"`
}

package models

import "time"

// Domain identifies one of the three independent job queues.
type Domain string

const (
	DomainImport   Domain = "import"
	DomainBackup   Domain = "backup"
	DomainDelivery Domain = "delivery"
)

// Domains lists every job domain the app observes.
var Domains = []Domain{DomainImport, DomainBackup, DomainDelivery}

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	switch d {
	case DomainImport, DomainBackup, DomainDelivery:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a transfer job.
// pending -> inprogress -> {completed, failed, cancelled}
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusInProgress JobStatus = "inprogress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is a sink state. Terminal jobs never
// transition again and their counters are frozen.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is a tracked file-transfer task owned by the worker daemon. The worker
// is the source of truth; records held here are replaced wholesale by poll
// results and job-updated push events, never field-merged.
type Job struct {
	ID              string    `json:"id"`
	Domain          Domain    `json:"domain"`
	SourcePath      string    `json:"source_path"`
	DestinationPath string    `json:"destination_path"`
	DestinationName string    `json:"destination_name,omitempty"`
	Status          JobStatus `json:"status"`

	TotalFiles   int   `json:"total_files"`
	FilesCopied  int   `json:"files_copied"`
	FilesSkipped int   `json:"files_skipped"`
	TotalBytes   int64 `json:"total_bytes"`

	BytesTransferred int64 `json:"bytes_transferred"`

	// Display-only fields fed by progress events, never persisted by the
	// worker and meaningless once the job is terminal.
	CurrentFile string  `json:"current_file,omitempty"`
	Speed       float64 `json:"speed,omitempty"`
	ETASeconds  int     `json:"eta_seconds,omitempty"`

	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// PartialSuccess reports whether the job completed but skipped files along
// the way. Distinct from failure.
func (j *Job) PartialSuccess() bool {
	return j.Status == StatusCompleted && j.FilesSkipped > 0
}

// Ratio returns the file-count completion ratio clamped to [0, 1].
func (j *Job) Ratio() float64 {
	if j.TotalFiles <= 0 {
		return 0
	}
	r := float64(j.FilesCopied) / float64(j.TotalFiles)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// ProgressEvent is a transient progress delta pushed by the worker while a
// job is in progress. Events carry no ordering guarantee.
type ProgressEvent struct {
	JobID            string  `json:"job_id"`
	FileName         string  `json:"file_name"`
	CurrentFile      int     `json:"current_file"`
	TotalFiles       int     `json:"total_files"`
	BytesTransferred int64   `json:"bytes_transferred"`
	TotalBytes       int64   `json:"total_bytes"`
	Speed            float64 `json:"speed"`
	ETASeconds       int     `json:"eta_seconds"`
}

package jobs

import (
	"sort"
	"sync"

	"offload-desktop/internal/models"
)

// Store is the per-domain collection of job records the UI reads from.
// Exactly one record exists per job id. Full-record replacement (push) and
// wholesale snapshot replacement (poll) are the only ways a job's
// authoritative fields change; ApplyProgress touches transient counters
// only.
type Store struct {
	domain models.Domain

	mu   sync.RWMutex
	jobs map[string]*models.Job
}

// NewStore creates an empty store for one domain.
func NewStore(domain models.Domain) *Store {
	return &Store{
		domain: domain,
		jobs:   make(map[string]*models.Job),
	}
}

// Domain returns the domain this store tracks.
func (s *Store) Domain() models.Domain {
	return s.domain
}

// ReplaceAll swaps the entire store for the given authoritative snapshot.
// This is the reconciliation path: it backfills missed pushes and removes
// records the worker no longer knows about, even if a push event for one of
// them arrived more recently.
func (s *Store) ReplaceAll(list []models.Job) {
	next := make(map[string]*models.Job, len(list))
	for i := range list {
		job := list[i]
		next[job.ID] = &job
	}

	s.mu.Lock()
	s.jobs = next
	s.mu.Unlock()
}

// ApplyJob applies a pushed job-record replacement. The event carries the
// full record; no field merging happens.
func (s *Store) ApplyJob(job models.Job) {
	s.mu.Lock()
	s.jobs[job.ID] = &job
	s.mu.Unlock()
}

// ApplyProgress merges a progress delta into the matching job. Policy is
// last-applied-wins: values overwrite unconditionally, even if the event
// describes an earlier point in the transfer. Events for unknown ids (job
// not yet pushed, or already removed) and for terminal jobs are discarded;
// neither case is an error. Returns whether the store changed.
func (s *Store) ApplyProgress(e models.ProgressEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[e.JobID]
	if !ok {
		return false
	}
	if job.Status.Terminal() {
		// Counters are frozen once terminal.
		return false
	}

	job.FilesCopied = e.CurrentFile
	job.TotalFiles = e.TotalFiles
	job.BytesTransferred = e.BytesTransferred
	job.TotalBytes = e.TotalBytes
	job.CurrentFile = e.FileName
	job.Speed = e.Speed
	job.ETASeconds = e.ETASeconds
	return true
}

// Remove deletes a record locally. Returns whether it was present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	return true
}

// Get returns a copy of one job.
func (s *Store) Get(id string) (models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return *job, true
}

// List returns copies of all jobs, newest first.
func (s *Store) List() []models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(*models.Job) bool { return true })
}

// Active returns the non-terminal partition, newest first.
func (s *Store) Active() []models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(j *models.Job) bool { return !j.Status.Terminal() })
}

// Terminal returns the history partition, newest first.
func (s *Store) Terminal() []models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(j *models.Job) bool { return j.Status.Terminal() })
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// collect copies matching jobs sorted by creation time, newest first, with
// id as tie-breaker. Caller must hold at least a read lock.
func (s *Store) collect(match func(*models.Job) bool) []models.Job {
	out := make([]models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if match(job) {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return out[i].ID < out[k].ID
	})
	return out
}

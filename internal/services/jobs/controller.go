package jobs

import (
	"fmt"

	"offload-desktop/internal/logger"
	"offload-desktop/internal/models"
	"offload-desktop/internal/worker"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// WorkerAPI is the slice of the worker client the controller drives.
type WorkerAPI interface {
	Lister
	StartJob(jobID string) (*models.Job, error)
	CancelJob(jobID string) error
	RemoveJob(jobID string) error
	CreateJob(req worker.CreateJobRequest) (*models.Job, error)
}

// Controller issues start/cancel/remove/create requests to the worker and
// keeps the local stores honest afterwards. Start and cancel apply no
// optimistic transition; remove is the one bounded-risk optimistic mutation,
// rolled back implicitly by the next reconciliation pass if the worker-side
// delete did not happen. Every operation, success or failure, triggers an
// immediate full re-fetch of its domain.
type Controller struct {
	api       WorkerAPI
	observers map[models.Domain]*Observer
}

// NewController wires the controller over the per-domain observers.
func NewController(api WorkerAPI, observers map[models.Domain]*Observer) *Controller {
	return &Controller{
		api:       api,
		observers: observers,
	}
}

// Start requests the pending -> inprogress transition. On failure the job
// stays pending locally and the error is surfaced to the caller.
func (c *Controller) Start(domain models.Domain, jobID string) error {
	defer c.refresh(domain)

	if _, err := c.api.StartJob(jobID); err != nil {
		logger.Log.Warn("start job failed",
			zap.String("domain", string(domain)),
			zap.String("job", jobID),
			zap.Error(err))
		return err
	}
	return nil
}

// Cancel requests cancellation. Advisory: the store only shows cancelled
// once the worker's own status transition arrives.
func (c *Controller) Cancel(domain models.Domain, jobID string) error {
	defer c.refresh(domain)

	if err := c.api.CancelJob(jobID); err != nil {
		logger.Log.Warn("cancel job failed",
			zap.String("domain", string(domain)),
			zap.String("job", jobID),
			zap.Error(err))
		return err
	}
	return nil
}

// Remove deletes a terminal job's record. Non-terminal jobs are rejected
// locally without touching the worker. The local record is removed
// optimistically; on worker failure the error is surfaced and the next
// refresh restores the record.
func (c *Controller) Remove(domain models.Domain, jobID string) error {
	obs, err := c.observer(domain)
	if err != nil {
		return err
	}

	job, ok := obs.Store().Get(jobID)
	if !ok {
		return fmt.Errorf("job %s not found in %s", jobID, domain)
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("job %s is %s; only finished jobs can be removed", jobID, job.Status)
	}

	defer c.refresh(domain)

	obs.Store().Remove(jobID)
	if err := c.api.RemoveJob(jobID); err != nil {
		logger.Log.Warn("remove job failed",
			zap.String("domain", string(domain)),
			zap.String("job", jobID),
			zap.Error(err))
		return err
	}
	return nil
}

// Create registers a new job with the worker and folds the pending record
// into the local store.
func (c *Controller) Create(req worker.CreateJobRequest) (*models.Job, error) {
	if !req.Domain.Valid() {
		return nil, fmt.Errorf("unknown domain: %s", req.Domain)
	}

	defer c.refresh(req.Domain)

	job, err := c.api.CreateJob(req)
	if err != nil {
		logger.Log.Warn("create job failed",
			zap.String("domain", string(req.Domain)),
			zap.Error(err))
		return nil, err
	}

	if obs, err := c.observer(req.Domain); err == nil {
		obs.Store().ApplyJob(*job)
	}

	logger.Log.Info("job created",
		zap.String("domain", string(req.Domain)),
		zap.String("job", job.ID))
	return job, nil
}

// Job returns one job from the domain's store.
func (c *Controller) Job(domain models.Domain, jobID string) (models.Job, bool) {
	obs, err := c.observer(domain)
	if err != nil {
		return models.Job{}, false
	}
	return obs.Store().Get(jobID)
}

// RefreshAll re-fetches every domain concurrently. Used for the manual
// refresh action and at startup.
func (c *Controller) RefreshAll() error {
	var g errgroup.Group
	for _, obs := range c.observers {
		g.Go(obs.Refresh)
	}
	return g.Wait()
}

// refresh runs the immediate post-operation re-fetch. Failures are logged
// only; the periodic poller retries on its own cadence.
func (c *Controller) refresh(domain models.Domain) {
	obs, err := c.observer(domain)
	if err != nil {
		return
	}
	if err := obs.Refresh(); err != nil {
		logger.Log.Warn("post-operation refresh failed",
			zap.String("domain", string(domain)),
			zap.Error(err))
	}
}

func (c *Controller) observer(domain models.Domain) (*Observer, error) {
	obs, ok := c.observers[domain]
	if !ok {
		return nil, fmt.Errorf("no observer for domain %s", domain)
	}
	return obs, nil
}

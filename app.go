package main

import (
	"context"
	"fmt"
	"time"

	"offload-desktop/internal/config"
	"offload-desktop/internal/database"
	"offload-desktop/internal/keystore"
	"offload-desktop/internal/logger"
	"offload-desktop/internal/models"
	"offload-desktop/internal/services/jobs"
	"offload-desktop/internal/services/media"
	"offload-desktop/internal/services/presets"
	"offload-desktop/internal/services/schedule"
	"offload-desktop/internal/worker"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App struct - main application state
type App struct {
	ctx context.Context
	cfg *config.Config
	db  *gorm.DB

	client     *worker.Client
	feed       *worker.EventFeed
	observers  map[models.Domain]*jobs.Observer
	controller *jobs.Controller
	watcher    *media.Watcher
	presets    *presets.Service
	schedule   *schedule.Service
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{}
}

// startup is called when the app starts. The context is saved so we can call
// the runtime methods
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	a.cfg = cfg

	if err := logger.Init(cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	logger.Log.Info("application starting",
		zap.String("worker_url", cfg.WorkerURL))

	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal("failed to initialize database", zap.Error(err))
	}
	a.db = db

	token, err := keystore.Token()
	if err != nil {
		logger.Log.Warn("failed to load worker token, connecting unauthenticated", zap.Error(err))
	}

	a.client = worker.NewClient(cfg.WorkerURL, token)
	a.feed = worker.NewEventFeed(cfg.WorkerEventsURL, token)
	a.feed.Start()

	emit := func(event string, payload interface{}) {
		runtime.EventsEmit(a.ctx, event, payload)
	}

	a.observers = make(map[models.Domain]*jobs.Observer, len(models.Domains))
	for _, domain := range models.Domains {
		obs := jobs.NewObserver(domain, jobs.NewStore(domain), a.client, a.feed, cfg.JobPollInterval, emit)
		if err := obs.Start(); err != nil {
			logger.Log.Error("failed to start job observer",
				zap.String("domain", string(domain)),
				zap.Error(err))
		}
		a.observers[domain] = obs
	}

	a.controller = jobs.NewController(a.client, a.observers)

	a.watcher = media.NewWatcher(a.client, &media.SystemNotifier{}, db, cfg.VolPollInterval, cfg.VolumeMountRoot, emit)
	a.watcher.OnNewVolume = func(v models.Volume) {
		runtime.EventsEmit(a.ctx, "media:open-import", v)
	}
	if err := a.watcher.Start(); err != nil {
		logger.Log.Error("failed to start media watcher", zap.Error(err))
	}

	a.presets = presets.NewService(db)

	a.schedule = schedule.NewService(db, a.controller)
	if err := a.schedule.Start(); err != nil {
		logger.Log.Warn("failed to start backup scheduler", zap.Error(err))
	}

	logger.Log.Info("startup complete")
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	logger.Log.Info("application shutting down")

	if a.schedule != nil {
		a.schedule.Stop()
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	for _, obs := range a.observers {
		obs.Stop()
	}
	if a.feed != nil {
		a.feed.Stop()
	}
	if err := database.Close(); err != nil {
		logger.Log.Warn("error closing database", zap.Error(err))
	}

	logger.Log.Info("shutdown complete")
	logger.Sync()
}

// ====================================================================================
// WAILS-BOUND METHODS - Exposed to Frontend
// ====================================================================================

// Job Queue Methods

// ListJobs returns the current snapshot of one domain's queue, partitioned
// into active and history.
func (a *App) ListJobs(domain string) (*jobs.Snapshot, error) {
	obs, err := a.observer(domain)
	if err != nil {
		return nil, err
	}
	return &jobs.Snapshot{
		Domain:  obs.Store().Domain(),
		Active:  obs.Store().Active(),
		History: obs.Store().Terminal(),
	}, nil
}

// GetJob retrieves a single job record.
func (a *App) GetJob(domain string, jobID string) (*models.Job, error) {
	obs, err := a.observer(domain)
	if err != nil {
		return nil, err
	}
	job, ok := obs.Store().Get(jobID)
	if !ok {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	return &job, nil
}

// StartJob asks the worker to begin a pending job.
func (a *App) StartJob(domain string, jobID string) error {
	d, err := a.domain(domain)
	if err != nil {
		return err
	}
	return a.controller.Start(d, jobID)
}

// CancelJob asks the worker to cancel a pending or running job.
func (a *App) CancelJob(domain string, jobID string) error {
	d, err := a.domain(domain)
	if err != nil {
		return err
	}
	return a.controller.Cancel(d, jobID)
}

// RemoveJob deletes a finished job from the queue history.
func (a *App) RemoveJob(domain string, jobID string) error {
	d, err := a.domain(domain)
	if err != nil {
		return err
	}
	return a.controller.Remove(d, jobID)
}

// CancelTransfer aborts a low-level transfer on the engine.
func (a *App) CancelTransfer(transferID string) error {
	return a.client.CancelTransfer(transferID)
}

// RefreshJobs re-fetches every domain immediately.
func (a *App) RefreshJobs() error {
	return a.controller.RefreshAll()
}

// CreateImport registers an import job for files on a removable volume.
func (a *App) CreateImport(sourcePath string, selectedFiles []string, destinationPath string) (*models.Job, error) {
	return a.controller.Create(worker.CreateJobRequest{
		Domain:          models.DomainImport,
		SourcePath:      sourcePath,
		SelectedFiles:   selectedFiles,
		DestinationPath: destinationPath,
	})
}

// CreateBackup registers a backup job.
func (a *App) CreateBackup(sourcePath string, destinationPath string, destinationName string) (*models.Job, error) {
	return a.controller.Create(worker.CreateJobRequest{
		Domain:          models.DomainBackup,
		SourcePath:      sourcePath,
		DestinationPath: destinationPath,
		DestinationName: destinationName,
	})
}

// CreateDelivery registers a delivery export using a preset's client folder
// template as the destination.
func (a *App) CreateDelivery(presetID string, selectedFiles []string) (*models.Job, error) {
	preset, err := a.presets.Get(presetID)
	if err != nil {
		return nil, err
	}

	return a.controller.Create(worker.CreateJobRequest{
		Domain:          models.DomainDelivery,
		SelectedFiles:   selectedFiles,
		DestinationPath: presets.ExpandDestination(preset, time.Now()),
		DestinationName: preset.Client,
		Template:        preset.FolderTemplate,
	})
}

// Media Methods

// ListVolumes returns the currently attached removable volumes.
func (a *App) ListVolumes() ([]models.Volume, error) {
	return a.client.ListVolumes()
}

// NotificationHistory returns recent volume notifications, newest first.
func (a *App) NotificationHistory(limit int) ([]models.NotificationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []models.NotificationRecord
	if err := a.db.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Delivery Preset Methods

// ListDeliveryPresets returns all delivery presets
func (a *App) ListDeliveryPresets() ([]models.DeliveryPreset, error) {
	return a.presets.List()
}

// CreateDeliveryPreset creates a new delivery preset
func (a *App) CreateDeliveryPreset(req presets.UpsertRequest) (*models.DeliveryPreset, error) {
	return a.presets.Create(req)
}

// UpdateDeliveryPreset updates an existing delivery preset
func (a *App) UpdateDeliveryPreset(presetID string, req presets.UpsertRequest) (*models.DeliveryPreset, error) {
	return a.presets.Update(presetID, req)
}

// DeleteDeliveryPreset deletes a delivery preset
func (a *App) DeleteDeliveryPreset(presetID string) error {
	return a.presets.Delete(presetID)
}

// Scheduled Backup Methods

// ListScheduledBackups retrieves all scheduled backups
func (a *App) ListScheduledBackups() ([]models.ScheduledBackup, error) {
	return a.schedule.List()
}

// UpsertScheduledBackup creates or updates a scheduled backup
func (a *App) UpsertScheduledBackup(req schedule.UpsertRequest) (string, error) {
	return a.schedule.Upsert(req)
}

// DeleteScheduledBackup removes a scheduled backup
func (a *App) DeleteScheduledBackup(backupID string) error {
	return a.schedule.Delete(backupID)
}

// Worker Connection Methods

// TestConnectionResponse represents the worker connection test result
type TestConnectionResponse struct {
	Success     bool   `json:"success"`
	TokenStored bool   `json:"token_stored"`
	Error       string `json:"error,omitempty"`
}

// TestWorkerConnection checks that the worker daemon is reachable with the
// current settings and reports whether an API token is stored.
func (a *App) TestWorkerConnection() TestConnectionResponse {
	resp := TestConnectionResponse{TokenStored: keystore.HasToken()}
	if err := a.client.Ping(); err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Success = true
	return resp
}

// SetWorkerToken stores the worker API token in the system keychain. The
// token is picked up on the next launch.
func (a *App) SetWorkerToken(token string) error {
	if token == "" {
		return keystore.DeleteToken()
	}
	return keystore.SetToken(token)
}

func (a *App) domain(raw string) (models.Domain, error) {
	d := models.Domain(raw)
	if !d.Valid() {
		return "", fmt.Errorf("unknown domain: %s", raw)
	}
	return d, nil
}

func (a *App) observer(raw string) (*jobs.Observer, error) {
	d, err := a.domain(raw)
	if err != nil {
		return nil, err
	}
	obs, ok := a.observers[d]
	if !ok {
		return nil, fmt.Errorf("no observer for domain %s", d)
	}
	return obs, nil
}

package schedule

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"offload-desktop/internal/logger"
	"offload-desktop/internal/models"
	"offload-desktop/internal/worker"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JobCreator is the slice of the job controller the scheduler needs: it only
// creates backup jobs and reads their state back while watching the outcome.
type JobCreator interface {
	Create(req worker.CreateJobRequest) (*models.Job, error)
	Job(domain models.Domain, jobID string) (models.Job, bool)
}

// Service runs recurring backups. Definitions are persisted as
// ScheduledBackup rows; enabled ones are registered with a seconds-aware
// cron runner. Execution just creates a backup job through the controller —
// the observer pipeline tracks it like any user-started job.
type Service struct {
	db      *gorm.DB
	cron    *cron.Cron
	jobs    JobCreator
	entries map[string]cron.EntryID // backup ID -> cron entry
	mu      sync.RWMutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

// UpsertRequest carries the editable scheduled-backup fields. Cron accepts
// standard 5-field expressions; they are normalized to the stored 6-field
// form.
type UpsertRequest struct {
	Name            string `json:"name"`
	SourcePath      string `json:"source_path"`
	DestinationPath string `json:"destination_path"`
	Cron            string `json:"cron"`
	Enabled         bool   `json:"enabled"`
}

// NewService creates a scheduler over the local database.
func NewService(db *gorm.DB, jobs JobCreator) *Service {
	return &Service{
		db:      db,
		cron:    cron.New(cron.WithSeconds()),
		jobs:    jobs,
		entries: make(map[string]cron.EntryID),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the cron runner and registers every enabled backup.
func (s *Service) Start() error {
	if err := s.db.AutoMigrate(&models.ScheduledBackup{}); err != nil {
		return fmt.Errorf("failed to migrate scheduled_backups table: %w", err)
	}

	s.cron.Start()

	var backups []models.ScheduledBackup
	if err := s.db.Where("enabled = ?", true).Find(&backups).Error; err != nil {
		return fmt.Errorf("failed to load scheduled backups: %w", err)
	}

	for _, b := range backups {
		if err := s.register(&b); err != nil {
			logger.Log.Warn("failed to schedule backup",
				zap.String("name", b.Name),
				zap.Error(err))
		}
	}

	logger.Log.Info("backup scheduler started", zap.Int("enabled", len(backups)))
	return nil
}

// Stop drains the cron runner and releases any outcome watchers.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		logger.Log.Info("backup scheduler stopped")
	}
}

// List returns all scheduled backups, newest first.
func (s *Service) List() ([]models.ScheduledBackup, error) {
	var backups []models.ScheduledBackup
	if err := s.db.Order("created_at DESC").Find(&backups).Error; err != nil {
		return nil, fmt.Errorf("failed to list scheduled backups: %w", err)
	}
	return backups, nil
}

// Upsert creates or updates a scheduled backup by name and (re)registers it
// with the cron runner.
func (s *Service) Upsert(req UpsertRequest) (string, error) {
	if req.Name == "" || req.SourcePath == "" || req.DestinationPath == "" || req.Cron == "" {
		return "", fmt.Errorf("name, source_path, destination_path and cron are required")
	}

	normalized, err := normalizeCron(req.Cron)
	if err != nil {
		return "", err
	}

	var backup models.ScheduledBackup
	result := s.db.Where("name = ?", req.Name).First(&backup)
	if result.Error != nil {
		if result.Error != gorm.ErrRecordNotFound {
			return "", fmt.Errorf("failed to query scheduled backup: %w", result.Error)
		}
		backup = models.ScheduledBackup{Name: req.Name}
	}

	backup.SourcePath = req.SourcePath
	backup.DestinationPath = req.DestinationPath
	backup.Cron = normalized
	backup.Enabled = req.Enabled

	schedule, err := cronParser().Parse(backup.Cron)
	if err != nil {
		return "", fmt.Errorf("failed to parse cron for next run: %w", err)
	}
	nextRun := schedule.Next(time.Now())
	backup.NextRunAt = &nextRun

	if result.Error == gorm.ErrRecordNotFound {
		err = s.db.Create(&backup).Error
	} else {
		err = s.db.Save(&backup).Error
	}
	if err != nil {
		return "", fmt.Errorf("failed to save scheduled backup: %w", err)
	}

	if err := s.reschedule(backup.ID); err != nil {
		return "", err
	}

	return backup.ID, nil
}

// Delete removes a scheduled backup and unregisters its cron entry.
func (s *Service) Delete(backupID string) error {
	s.mu.Lock()
	if entryID, exists := s.entries[backupID]; exists {
		s.cron.Remove(entryID)
		delete(s.entries, backupID)
	}
	s.mu.Unlock()

	if err := s.db.Delete(&models.ScheduledBackup{}, "id = ?", backupID).Error; err != nil {
		return fmt.Errorf("failed to delete scheduled backup: %w", err)
	}
	return nil
}

// register adds an enabled backup to the cron runner, replacing any earlier
// entry for the same id.
func (s *Service) register(b *models.ScheduledBackup) error {
	if !b.Enabled {
		return nil
	}

	s.mu.Lock()
	if entryID, exists := s.entries[b.ID]; exists {
		s.cron.Remove(entryID)
	}
	s.mu.Unlock()

	id := b.ID
	entryID, err := s.cron.AddFunc(b.Cron, func() {
		s.execute(id)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron entry: %w", err)
	}

	s.mu.Lock()
	s.entries[b.ID] = entryID
	s.mu.Unlock()

	return nil
}

// reschedule reloads a backup from the database and refreshes its cron
// entry, removing it when the row is gone or disabled.
func (s *Service) reschedule(backupID string) error {
	var backup models.ScheduledBackup
	if err := s.db.First(&backup, "id = ?", backupID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.mu.Lock()
			if entryID, exists := s.entries[backupID]; exists {
				s.cron.Remove(entryID)
				delete(s.entries, backupID)
			}
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to load scheduled backup: %w", err)
	}

	if !backup.Enabled {
		s.mu.Lock()
		if entryID, exists := s.entries[backupID]; exists {
			s.cron.Remove(entryID)
			delete(s.entries, backupID)
		}
		s.mu.Unlock()
		return nil
	}

	return s.register(&backup)
}

// execute fires one scheduled run: stamp run times, create the backup job,
// watch the outcome in the background.
func (s *Service) execute(backupID string) {
	var backup models.ScheduledBackup
	if err := s.db.First(&backup, "id = ?", backupID).Error; err != nil {
		logger.Log.Error("failed to load scheduled backup",
			zap.String("id", backupID),
			zap.Error(err))
		return
	}

	now := time.Now()
	backup.LastRunAt = &now
	if schedule, err := cronParser().Parse(backup.Cron); err == nil {
		nextRun := schedule.Next(now)
		backup.NextRunAt = &nextRun
	}
	if err := s.db.Save(&backup).Error; err != nil {
		logger.Log.Warn("failed to update backup run times", zap.Error(err))
	}

	job, err := s.jobs.Create(worker.CreateJobRequest{
		Domain:          models.DomainBackup,
		SourcePath:      backup.SourcePath,
		DestinationPath: backup.DestinationPath,
		DestinationName: backup.Name,
	})
	if err != nil {
		logger.Log.Error("scheduled backup failed to create job",
			zap.String("name", backup.Name),
			zap.Error(err))
		return
	}

	logger.Log.Info("scheduled backup started",
		zap.String("name", backup.Name),
		zap.String("job", job.ID))

	go s.watchOutcome(backup.Name, job.ID)
}

// watchOutcome polls the local store until the job reaches a terminal state
// and logs the result. The store is fed by the usual push/poll pipeline.
// Releases on service stop; the job itself keeps running on the worker.
func (s *Service) watchOutcome(name, jobID string) {
	timeout := time.After(6 * time.Hour)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-timeout:
			logger.Log.Warn("scheduled backup still running after 6h, giving up watching",
				zap.String("name", name),
				zap.String("job", jobID))
			return
		case <-ticker.C:
			job, ok := s.jobs.Job(models.DomainBackup, jobID)
			if !ok {
				continue
			}
			if !job.Status.Terminal() {
				continue
			}

			switch job.Status {
			case models.StatusCompleted:
				logger.Log.Info("scheduled backup completed",
					zap.String("name", name),
					zap.Int("files_copied", job.FilesCopied),
					zap.Int("files_skipped", job.FilesSkipped))
			case models.StatusFailed:
				logger.Log.Error("scheduled backup failed",
					zap.String("name", name),
					zap.String("error", job.ErrorMessage))
			case models.StatusCancelled:
				logger.Log.Warn("scheduled backup cancelled", zap.String("name", name))
			}
			return
		}
	}
}

func cronParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// normalizeCron converts 5-field cron to 6-field format by prepending seconds
func normalizeCron(cronExpr string) (string, error) {
	cronExpr = strings.TrimSpace(cronExpr)

	fields := strings.Fields(cronExpr)
	if len(fields) == 6 {
		if _, err := cronParser().Parse(cronExpr); err == nil {
			return cronExpr, nil
		}
	}

	if len(fields) == 5 {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return "", fmt.Errorf("invalid 5-field cron expression: %w", err)
		}
		// 0 = run at second zero of the minute
		return "0 " + cronExpr, nil
	}

	return "", fmt.Errorf("invalid cron expression: expected 5 or 6 fields, got %d", len(fields))
}

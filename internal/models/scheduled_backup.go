package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScheduledBackup is a recurring backup job definition. The cron expression
// is stored in 6-field form (with seconds).
type ScheduledBackup struct {
	ID              string     `gorm:"primaryKey" json:"id"`
	Name            string     `gorm:"unique;not null" json:"name"`
	SourcePath      string     `gorm:"not null;column:source_path" json:"source_path"`
	DestinationPath string     `gorm:"not null;column:destination_path" json:"destination_path"`
	Cron            string     `gorm:"not null" json:"cron"`
	Enabled         bool       `gorm:"default:true" json:"enabled"`
	LastRunAt       *time.Time `gorm:"column:last_run_at" json:"last_run_at"`
	NextRunAt       *time.Time `gorm:"column:next_run_at" json:"next_run_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (sb *ScheduledBackup) BeforeCreate(tx *gorm.DB) error {
	if sb.ID == "" {
		sb.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (ScheduledBackup) TableName() string {
	return "scheduled_backups"
}

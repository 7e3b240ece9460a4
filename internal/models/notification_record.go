package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationRecord is a row in the local notification history, written
// whenever the media watcher announces a newly attached volume.
type NotificationRecord struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Kind       string    `gorm:"not null" json:"kind"` // volume_attached
	Title      string    `gorm:"not null" json:"title"`
	Body       string    `gorm:"type:text" json:"body"`
	VolumePath string    `gorm:"column:volume_path" json:"volume_path"`
	CreatedAt  time.Time `json:"created_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (nr *NotificationRecord) BeforeCreate(tx *gorm.DB) error {
	if nr.ID == "" {
		nr.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (NotificationRecord) TableName() string {
	return "notification_records"
}

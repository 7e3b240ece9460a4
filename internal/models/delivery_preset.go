package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryPreset is a reusable destination template for client deliveries.
// FolderTemplate supports {client}, {preset} and {date} tokens.
type DeliveryPreset struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"unique;not null" json:"name"`
	Client         string    `gorm:"not null" json:"client"`
	FolderTemplate string    `gorm:"not null;column:folder_template" json:"folder_template"`
	Checksum       bool      `gorm:"default:true" json:"checksum"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (dp *DeliveryPreset) BeforeCreate(tx *gorm.DB) error {
	if dp.ID == "" {
		dp.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (DeliveryPreset) TableName() string {
	return "delivery_presets"
}

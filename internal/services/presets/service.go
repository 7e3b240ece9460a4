package presets

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"offload-desktop/internal/models"

	"gorm.io/gorm"
)

// Service manages delivery presets: reusable client-folder destination
// templates for delivery exports.
type Service struct {
	db *gorm.DB
}

// UpsertRequest carries the editable preset fields.
type UpsertRequest struct {
	Name           string `json:"name"`
	Client         string `json:"client"`
	FolderTemplate string `json:"folder_template"`
	Checksum       bool   `json:"checksum"`
}

// NewService creates a preset service over the local database.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// List returns all presets, newest first.
func (s *Service) List() ([]models.DeliveryPreset, error) {
	var presets []models.DeliveryPreset
	if err := s.db.Order("created_at DESC").Find(&presets).Error; err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	return presets, nil
}

// Get retrieves one preset by id.
func (s *Service) Get(presetID string) (*models.DeliveryPreset, error) {
	var preset models.DeliveryPreset
	if err := s.db.Where("id = ?", presetID).First(&preset).Error; err != nil {
		return nil, fmt.Errorf("preset not found: %w", err)
	}
	return &preset, nil
}

// Create stores a new preset.
func (s *Service) Create(req UpsertRequest) (*models.DeliveryPreset, error) {
	if req.Name == "" || req.FolderTemplate == "" {
		return nil, fmt.Errorf("name and folder_template are required")
	}

	preset := models.DeliveryPreset{
		Name:           req.Name,
		Client:         req.Client,
		FolderTemplate: req.FolderTemplate,
		Checksum:       req.Checksum,
	}
	if err := s.db.Create(&preset).Error; err != nil {
		return nil, fmt.Errorf("failed to create preset: %w", err)
	}
	return &preset, nil
}

// Update rewrites an existing preset.
func (s *Service) Update(presetID string, req UpsertRequest) (*models.DeliveryPreset, error) {
	preset, err := s.Get(presetID)
	if err != nil {
		return nil, err
	}

	preset.Name = req.Name
	preset.Client = req.Client
	preset.FolderTemplate = req.FolderTemplate
	preset.Checksum = req.Checksum

	if err := s.db.Save(preset).Error; err != nil {
		return nil, fmt.Errorf("failed to update preset: %w", err)
	}
	return preset, nil
}

// Delete removes a preset.
func (s *Service) Delete(presetID string) error {
	if err := s.db.Where("id = ?", presetID).Delete(&models.DeliveryPreset{}).Error; err != nil {
		return fmt.Errorf("failed to delete preset: %w", err)
	}
	return nil
}

// ExpandDestination resolves a preset's folder template into a concrete
// destination path. Supported tokens: {client}, {preset}, {date}.
func ExpandDestination(preset *models.DeliveryPreset, now time.Time) string {
	replacer := strings.NewReplacer(
		"{client}", preset.Client,
		"{preset}", preset.Name,
		"{date}", now.Format("2006-01-02"),
	)
	return filepath.Clean(replacer.Replace(preset.FolderTemplate))
}

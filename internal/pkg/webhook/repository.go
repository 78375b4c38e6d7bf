package webhook

import (
	"time"

	"github.com/mkessler-dev/HostPulse/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the webhook gateway.
type Repository interface {
	// CreateIfNotExists inserts the event unless a row with the same
	// (service, provider_event_id) already exists. It reports whether the
	// row was created and returns the stored row either way.
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	UpdateStatus(id uint, status, responseData, processingError string) error
	GetByID(id uint) (*models.WebhookEvent, error)
	ListByStatus(status string, limit int) ([]models.WebhookEvent, error)
	ListArchivable(before time.Time, limit int) ([]models.WebhookEvent, error)
	MarkArchived(ids []uint) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a webhook repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "service"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("service = ? AND provider_event_id = ?", event.Service, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) UpdateStatus(id uint, status, responseData, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":           status,
		"response_data":    responseData,
		"processing_error": processingError,
		"processed_at":     &now,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) GetByID(id uint) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *gormRepository) ListByStatus(status string, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.WebhookEvent
	q := r.db.Order("created_at desc").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&events).Error
	return events, err
}

func (r *gormRepository) ListArchivable(before time.Time, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []models.WebhookEvent
	err := r.db.
		Where("archived = ? AND status IN ? AND created_at < ?",
			false, []string{models.WebhookStatusProcessed, models.WebhookStatusIgnored}, before).
		Order("created_at asc").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *gormRepository) MarkArchived(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id IN ?", ids).
		Update("archived", true).Error
}

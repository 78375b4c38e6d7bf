package integration

import (
	"time"

	"github.com/mkessler-dev/HostPulse/app/models"
	"gorm.io/gorm"
)

// Repository is the persistence sink consumed by the integration core.
// RequestRecord, CostRecord and Alert are append-only; IntegrationHealth is
// the only row type that gets updated in place.
type Repository interface {
	CreateRequestRecord(rec *models.RequestRecord) error
	CreateCostRecord(rec *models.CostRecord) error
	CreateAlert(alert *models.Alert) error
	UpdateHealth(service string, healthy bool, detail string) (*models.IntegrationHealth, error)
	ListHealth() ([]models.IntegrationHealth, error)
	ListAlerts(limit int) ([]models.Alert, error)
	RequestStats(service string, since time.Time) (total, errors int64, avgResponseMS float64, err error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an integration repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateRequestRecord(rec *models.RequestRecord) error {
	return r.db.Create(rec).Error
}

func (r *gormRepository) CreateCostRecord(rec *models.CostRecord) error {
	return r.db.Create(rec).Error
}

func (r *gormRepository) CreateAlert(alert *models.Alert) error {
	return r.db.Create(alert).Error
}

func (r *gormRepository) UpdateHealth(service string, healthy bool, detail string) (*models.IntegrationHealth, error) {
	var health models.IntegrationHealth
	err := r.db.Where(models.IntegrationHealth{Service: service}).
		FirstOrCreate(&health).Error
	if err != nil {
		return nil, err
	}

	now := time.Now()
	health.LastHealthCheck = &now
	if healthy {
		health.Status = models.IntegrationStatusActive
		health.LastError = ""
		health.SuccessCount++
	} else {
		health.Status = models.IntegrationStatusError
		health.LastError = detail
		health.ErrorCount++
	}
	if err := r.db.Save(&health).Error; err != nil {
		return nil, err
	}
	return &health, nil
}

func (r *gormRepository) ListHealth() ([]models.IntegrationHealth, error) {
	var rows []models.IntegrationHealth
	err := r.db.Order("service asc").Find(&rows).Error
	return rows, err
}

func (r *gormRepository) ListAlerts(limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Alert
	err := r.db.Order("created_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *gormRepository) RequestStats(service string, since time.Time) (int64, int64, float64, error) {
	type row struct {
		Total  int64
		Errors int64
		AvgMS  float64
	}
	var out row
	err := r.db.Model(&models.RequestRecord{}).
		Select("COUNT(*) AS total, SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS errors, COALESCE(AVG(response_time_ms), 0) AS avg_ms", models.RequestStatusError).
		Where("service = ? AND created_at >= ?", service, since).
		Scan(&out).Error
	if err != nil {
		return 0, 0, 0, err
	}
	return out.Total, out.Errors, out.AvgMS, nil
}

package models

import "time"

const (
	IntegrationStatusActive = "active"
	IntegrationStatusError  = "error"
)

// IntegrationHealth tracks the current status of one provider integration.
// One row per service, updated after every health check and after
// status-changing events such as a breaker opening.
type IntegrationHealth struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Service         string     `gorm:"type:varchar(50);not null;uniqueIndex" json:"service"`
	Status          string     `gorm:"type:varchar(10);not null;default:'active'" json:"status"`
	LastHealthCheck *time.Time `gorm:"type:timestamp;default:null" json:"last_health_check,omitempty"`
	LastError       string     `gorm:"type:text" json:"last_error"`
	SuccessCount    int64      `gorm:"default:0" json:"success_count"`
	ErrorCount      int64      `gorm:"default:0" json:"error_count"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

package models

import "time"

const (
	AlertTypeCircuitOpen      = "circuit_open"
	AlertTypeSignatureFailure = "signature_failure"
	AlertTypeHealthDegraded   = "health_degraded"

	AlertSeverityWarning  = "warning"
	AlertSeverityCritical = "critical"
)

// Alert records an integration condition that needs human attention,
// e.g. a breaker opening or a spike of webhook signature failures.
type Alert struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Integration  string     `gorm:"type:varchar(50);not null;index" json:"integration"`
	AlertType    string     `gorm:"type:varchar(50);not null;index" json:"alert_type"`
	Severity     string     `gorm:"type:varchar(10);not null;default:'warning'" json:"severity"`
	Title        string     `gorm:"type:varchar(255);not null" json:"title"`
	Message      string     `gorm:"type:text" json:"message"`
	AlertData    string     `gorm:"type:text" json:"alert_data"`
	Acknowledged bool       `gorm:"default:false;index" json:"acknowledged"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	ResolvedAt   *time.Time `gorm:"type:timestamp;default:null" json:"resolved_at,omitempty"`
}

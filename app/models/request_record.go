package models

import "time"

const (
	RequestStatusSuccess = "success"
	RequestStatusError   = "error"
)

// RequestRecord is an append-only log entry written after every provider
// call attempt. Rows are never updated.
type RequestRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	RequestID      string    `gorm:"type:varchar(36);not null;index" json:"request_id"`
	Service        string    `gorm:"type:varchar(50);not null;index:idx_request_records_service_created,priority:1" json:"service"`
	Endpoint       string    `gorm:"type:varchar(255);not null" json:"endpoint"`
	Method         string    `gorm:"type:varchar(10);not null" json:"method"`
	RequestData    string    `gorm:"type:text" json:"request_data"`
	ResponseData   string    `gorm:"type:mediumtext" json:"response_data"`
	ResponseTimeMS int64     `gorm:"not null" json:"response_time_ms"`
	Status         string    `gorm:"type:varchar(10);not null;index" json:"status"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message"`
	CostCents      int64     `gorm:"default:0" json:"cost_cents"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_request_records_service_created,priority:2" json:"created_at"`
}

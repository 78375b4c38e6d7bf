package models

import "time"

const (
	WebhookStatusReceived  = "received"
	WebhookStatusProcessed = "processed"
	WebhookStatusIgnored   = "ignored"
	WebhookStatusFailed    = "failed"
)

// WebhookEvent stores inbound provider callbacks with deduplication metadata
// for idempotent processing. The unique (service, provider_event_id) index
// guarantees one row per provider event regardless of redeliveries.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Service         string     `gorm:"type:varchar(50);not null;index:ux_webhook_events_service_event,unique,priority:1;index" json:"service"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_webhook_events_service_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	HeadersJSON     string     `gorm:"type:text" json:"headers_json"`
	Status          string     `gorm:"type:varchar(10);not null;default:'received';index" json:"status"`
	ResponseData    string     `gorm:"type:text" json:"response_data"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	Archived        bool       `gorm:"default:false;index" json:"archived"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
}

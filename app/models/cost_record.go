package models

import "time"

// CostRecord stores one billable unit of work for usage-based cost
// aggregation, e.g. one row per sent email or geocode lookup.
type CostRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Integration   string    `gorm:"type:varchar(50);not null;index:idx_cost_records_integration_period,priority:1" json:"integration"`
	CostType      string    `gorm:"type:varchar(50);not null" json:"cost_type"`
	AmountCents   int64     `gorm:"not null" json:"amount_cents"`
	Currency      string    `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Quantity      int64     `gorm:"not null;default:1" json:"quantity"`
	BillingPeriod string    `gorm:"type:varchar(7);not null;index:idx_cost_records_integration_period,priority:2" json:"billing_period"`
	PeriodStart   time.Time `gorm:"type:timestamp null" json:"period_start"`
	PeriodEnd     time.Time `gorm:"type:timestamp null" json:"period_end"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

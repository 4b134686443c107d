package models

import (
	"time"
)

// GeocodeQueue holds projects whose address could not be geocoded at save time.
// The queue worker retries them with backoff.
type GeocodeQueue struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID   string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"project_id"`
	Address     string     `gorm:"type:text;not null" json:"address"`
	Status      string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_geocode_status" json:"status"` // pending, processing, done, failed, permanent_fail
	Attempts    int        `gorm:"default:0" json:"attempts"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
	NextRetryAt *time.Time `gorm:"index:idx_geocode_retry" json:"next_retry_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (GeocodeQueue) TableName() string {
	return "geocode_queue"
}

// Status constants
const (
	QueueStatusPending       = "pending"
	QueueStatusProcessing    = "processing"
	QueueStatusDone          = "done"
	QueueStatusFailed        = "failed"
	QueueStatusPermanentFail = "permanent_fail" // address has no match
)

// MaxRetryAttempts before giving up on an address
const MaxRetryAttempts = 5

// GetNextRetryDelay calculates exponential backoff for retries
func GetNextRetryDelay(attempts int) time.Duration {
	// 5min, 15min, 1h, 4h, 12h
	delays := []time.Duration{
		5 * time.Minute,
		15 * time.Minute,
		1 * time.Hour,
		4 * time.Hour,
		12 * time.Hour,
	}

	if attempts < 0 {
		attempts = 0
	}
	if attempts >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempts]
}

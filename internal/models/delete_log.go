package models

import "time"

// DeleteLog represents a record of physically deleted projects
type DeleteLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID string    `gorm:"type:varchar(36);not null;index" json:"project_id"`
	Name      string    `gorm:"type:text" json:"name"`
	City      string    `gorm:"type:varchar(100)" json:"city"`
	RemovedAt time.Time `json:"removed_at"`
	DeletedAt time.Time `gorm:"not null;autoCreateTime;index" json:"deleted_at"`
	Reason    string    `gorm:"type:varchar(50);not null" json:"reason"`
}

// TableName specifies the table name
func (DeleteLog) TableName() string {
	return "delete_logs"
}

// DeleteReason constants
const (
	DeleteReasonExpired = "expired_retention"
	DeleteReasonManual  = "manual_deletion"
)

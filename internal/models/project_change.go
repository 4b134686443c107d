package models

import "time"

// ProjectChange records a field change made through the admin dashboard
type ProjectChange struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID  string    `gorm:"type:varchar(36);not null;index" json:"project_id"`
	ChangeType string    `gorm:"type:varchar(50);not null" json:"change_type"`
	OldValue   string    `gorm:"type:text" json:"old_value,omitempty"`
	NewValue   string    `gorm:"type:text" json:"new_value,omitempty"`
	ChangedBy  string    `gorm:"type:varchar(320)" json:"changed_by,omitempty"`
	DetectedAt time.Time `gorm:"not null;index" json:"detected_at"`
}

// TableName specifies the table name
func (ProjectChange) TableName() string {
	return "project_changes"
}

// ChangeType constants
const (
	ChangeTypeNew        = "project_created"
	ChangeTypeName       = "name_changed"
	ChangeTypeLocation   = "location_changed"
	ChangeTypePhase      = "phase_changed"
	ChangeTypeVisibility = "visibility_changed"
	ChangeTypeRegion     = "region_changed"
	ChangeTypeCity       = "city_changed"
	ChangeTypeCoords     = "coordinates_changed"
	ChangeTypeCost       = "estimated_cost_changed"
	ChangeTypeRemoved    = "project_removed"
)

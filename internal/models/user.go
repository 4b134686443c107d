package models

import "time"

// User mirrors an auth-service account locally so digests can resolve recipients
type User struct {
	ID          string    `gorm:"type:varchar(128);primaryKey" json:"id"`
	Email       string    `gorm:"type:varchar(320);index" json:"email"`
	DisplayName string    `gorm:"type:varchar(255)" json:"display_name,omitempty"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

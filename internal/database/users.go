package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tyomaat-portal/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertUser records a signed-in user, refreshing email and last_seen_at on conflict
func (gdb *GormDB) UpsertUser(ctx context.Context, id, email, displayName string, seenAt time.Time) error {
	u := models.User{
		ID:          id,
		Email:       email,
		DisplayName: displayName,
		LastSeenAt:  seenAt,
	}
	assign := []string{"last_seen_at", "updated_at"}
	if email != "" {
		assign = append(assign, "email")
	}
	if displayName != "" {
		assign = append(assign, "display_name")
	}
	err := gdb.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(assign),
	}).Create(&u).Error
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// LookupEmail returns the stored email of a user
func (gdb *GormDB) LookupEmail(ctx context.Context, userID string) (string, error) {
	var u models.User
	err := gdb.db.WithContext(ctx).Select("id", "email").Where("id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if u.Email == "" {
		return "", ErrNotFound
	}
	return u.Email, nil
}

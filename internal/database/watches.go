package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tyomaat-portal/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateWatch stores a new watch for its owner
func (gdb *GormDB) CreateWatch(ctx context.Context, w *models.Watch) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if err := gdb.db.WithContext(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("failed to create watch: %w", err)
	}
	return nil
}

// ListWatchesByUser returns the user's watches, newest first
func (gdb *GormDB) ListWatchesByUser(ctx context.Context, userID string) ([]models.Watch, error) {
	var watches []models.Watch
	err := gdb.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&watches).Error
	return watches, err
}

// GetWatchForUser returns ErrNotFound for missing watches and for watches owned by someone else
func (gdb *GormDB) GetWatchForUser(ctx context.Context, id, userID string) (*models.Watch, error) {
	var w models.Watch
	err := gdb.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// UpdateWatchSettings changes the user-editable fields of a watch
func (gdb *GormDB) UpdateWatchSettings(ctx context.Context, w *models.Watch) error {
	res := gdb.db.WithContext(ctx).Model(&models.Watch{}).
		Where("id = ? AND user_id = ?", w.ID, w.UserID).
		Updates(map[string]interface{}{
			"name":      w.Name,
			"frequency": w.Frequency,
			"enabled":   w.Enabled,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update watch: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWatchForUser removes a watch owned by userID
func (gdb *GormDB) DeleteWatchForUser(ctx context.Context, id, userID string) error {
	res := gdb.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Watch{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete watch: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEnabledWatches returns every enabled watch in creation order
func (gdb *GormDB) ListEnabledWatches(ctx context.Context) ([]models.Watch, error) {
	var watches []models.Watch
	err := gdb.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("created_at ASC").
		Find(&watches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled watches: %w", err)
	}
	return watches, nil
}

// MarkWatchSent advances last_sent_at. Older timestamps never overwrite newer ones.
func (gdb *GormDB) MarkWatchSent(ctx context.Context, id string, at time.Time) error {
	err := gdb.db.WithContext(ctx).Model(&models.Watch{}).
		Where("id = ?", id).
		Where("last_sent_at IS NULL OR last_sent_at < ?", at).
		Updates(map[string]interface{}{
			"last_sent_at": at,
			"updated_at":   at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark watch %s sent: %w", id, err)
	}
	return nil
}

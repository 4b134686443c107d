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

// EnqueueGeocode schedules a geocode retry for a project. An existing row for
// the project is reset, so a changed address starts over.
func (gdb *GormDB) EnqueueGeocode(ctx context.Context, projectID, address, lastErr string, permanent bool) error {
	now := gdb.db.NowFunc()
	item := models.GeocodeQueue{
		ProjectID: projectID,
		Address:   address,
		Status:    models.QueueStatusPending,
		LastError: lastErr,
	}
	if permanent {
		item.Status = models.QueueStatusPermanentFail
		item.CompletedAt = &now
	}

	err := gdb.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"address":       item.Address,
			"status":        item.Status,
			"attempts":      0,
			"last_error":    item.LastError,
			"next_retry_at": nil,
			"completed_at":  item.CompletedAt,
			"updated_at":    now,
		}),
	}).Create(&item).Error
	if err != nil {
		return fmt.Errorf("failed to enqueue geocode: %w", err)
	}
	return nil
}

// ResolveGeocode marks the queue row of a project as done, if there is one
func (gdb *GormDB) ResolveGeocode(ctx context.Context, projectID string) error {
	now := gdb.db.NowFunc()
	err := gdb.db.WithContext(ctx).Model(&models.GeocodeQueue{}).
		Where("project_id = ? AND status <> ?", projectID, models.QueueStatusDone).
		Updates(map[string]interface{}{
			"status":        models.QueueStatusDone,
			"last_error":    "",
			"next_retry_at": nil,
			"completed_at":  now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to resolve geocode queue row: %w", err)
	}
	return nil
}

// NextGeocodeItems returns pending rows first, then failed rows whose retry time has passed
func (gdb *GormDB) NextGeocodeItems(ctx context.Context, now time.Time, limit int) ([]models.GeocodeQueue, error) {
	if limit <= 0 {
		limit = 1
	}
	var items []models.GeocodeQueue
	err := gdb.db.WithContext(ctx).
		Where("status = ?", models.QueueStatusPending).
		Or("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", models.QueueStatusFailed, now).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch geocode queue: %w", err)
	}
	return items, nil
}

// SaveGeocodeItem writes back a processed queue row
func (gdb *GormDB) SaveGeocodeItem(ctx context.Context, item *models.GeocodeQueue) error {
	if err := gdb.db.WithContext(ctx).Save(item).Error; err != nil {
		return fmt.Errorf("failed to save geocode queue row: %w", err)
	}
	return nil
}

// ListGeocodeQueue returns queue rows, optionally filtered by status, newest first
func (gdb *GormDB) ListGeocodeQueue(ctx context.Context, status string, limit int) ([]models.GeocodeQueue, error) {
	q := gdb.db.WithContext(ctx).Order("updated_at DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var items []models.GeocodeQueue
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// GetGeocodeItem returns the queue row of a project
func (gdb *GormDB) GetGeocodeItem(ctx context.Context, projectID string) (*models.GeocodeQueue, error) {
	var item models.GeocodeQueue
	err := gdb.db.WithContext(ctx).Where("project_id = ?", projectID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GeocodeQueueStats counts queue rows per status
func (gdb *GormDB) GeocodeQueueStats(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := gdb.db.WithContext(ctx).Model(&models.GeocodeQueue{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := map[string]int64{
		models.QueueStatusPending:       0,
		models.QueueStatusProcessing:    0,
		models.QueueStatusDone:          0,
		models.QueueStatusFailed:        0,
		models.QueueStatusPermanentFail: 0,
	}
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}

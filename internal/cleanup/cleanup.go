package cleanup

import (
	"context"
	"fmt"
	"log"
	"time"

	"tyomaat-portal/internal/models"

	"gorm.io/gorm"
)

// SearchIndex is the part of the search client cleanup touches
type SearchIndex interface {
	DeleteProject(id string) error
}

// Service handles physical deletion of soft-deleted projects
type Service struct {
	db     *gorm.DB
	search SearchIndex
	now    func() time.Time
}

// NewService creates a new cleanup service. search may be nil.
func NewService(db *gorm.DB, search SearchIndex) *Service {
	return &Service{db: db, search: search, now: func() time.Time { return time.Now().UTC() }}
}

// CleanupConfig holds configuration for cleanup operations
type CleanupConfig struct {
	RetentionDays    int  // days a soft-deleted project is kept before it is purged
	MaxDeletionCount int  // safety limit per run
	DryRun           bool // only report what would be deleted
}

// DefaultCleanupConfig returns default configuration
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		RetentionDays:    30,
		MaxDeletionCount: 500,
	}
}

// CleanupResult holds the result of a cleanup operation
type CleanupResult struct {
	TargetCount     int       `json:"target_count"`
	DeletedCount    int       `json:"deleted_count"`
	ErrorCount      int       `json:"error_count"`
	QueueRowsPurged int64     `json:"queue_rows_purged"`
	DryRun          bool      `json:"dry_run"`
	ExecutedAt      time.Time `json:"executed_at"`
	DeletedProjects []string  `json:"deleted_projects"`
	Errors          []string  `json:"errors,omitempty"`
}

func (s *Service) cutoff(retentionDays int) time.Time {
	return s.now().AddDate(0, 0, -retentionDays)
}

// FindExpiredProjects finds soft-deleted projects older than the retention period
func (s *Service) FindExpiredProjects(ctx context.Context, retentionDays int) ([]models.Project, error) {
	var projects []models.Project
	cutoff := s.cutoff(retentionDays)

	err := s.db.WithContext(ctx).Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Order("deleted_at ASC").
		Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired projects: %w", err)
	}

	log.Printf("Cleanup: found %d projects deleted before %s", len(projects), cutoff.Format("2006-01-02"))
	return projects, nil
}

// PhysicallyDelete purges expired projects, writing a DeleteLog entry for each,
// and removes finished geocode queue rows older than the retention period.
func (s *Service) PhysicallyDelete(ctx context.Context, config CleanupConfig) (*CleanupResult, error) {
	result := &CleanupResult{
		DryRun:          config.DryRun,
		ExecutedAt:      s.now(),
		DeletedProjects: []string{},
	}

	expired, err := s.FindExpiredProjects(ctx, config.RetentionDays)
	if err != nil {
		return nil, err
	}
	result.TargetCount = len(expired)

	if config.MaxDeletionCount > 0 && result.TargetCount > config.MaxDeletionCount {
		return nil, fmt.Errorf("safety check failed: %d projects exceed max deletion limit of %d",
			result.TargetCount, config.MaxDeletionCount)
	}

	for i := range expired {
		p := &expired[i]
		if config.DryRun {
			log.Printf("Cleanup: [DRY-RUN] would delete project %s (%s)", p.ID, p.Name)
			result.DeletedProjects = append(result.DeletedProjects, p.ID)
			result.DeletedCount++
			continue
		}

		if err := s.purge(ctx, p); err != nil {
			msg := fmt.Sprintf("failed to delete project %s: %v", p.ID, err)
			log.Printf("Cleanup: ERROR: %s", msg)
			result.Errors = append(result.Errors, msg)
			result.ErrorCount++
			continue
		}

		if s.search != nil {
			if err := s.search.DeleteProject(p.ID); err != nil {
				log.Printf("Cleanup: failed to remove project %s from search: %v", p.ID, err)
			}
		}
		result.DeletedProjects = append(result.DeletedProjects, p.ID)
		result.DeletedCount++
	}

	if !config.DryRun {
		purged, err := s.purgeQueue(ctx, config.RetentionDays)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			result.ErrorCount++
		}
		result.QueueRowsPurged = purged
	}

	log.Printf("Cleanup: completed %d/%d deleted, %d queue rows purged, %d errors (dry-run: %v)",
		result.DeletedCount, result.TargetCount, result.QueueRowsPurged, result.ErrorCount, config.DryRun)

	return result, nil
}

func (s *Service) purge(ctx context.Context, p *models.Project) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := models.DeleteLog{
			ProjectID: p.ID,
			Name:      p.Name,
			City:      p.City,
			RemovedAt: p.DeletedAt.Time,
			Reason:    models.DeleteReasonExpired,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to create delete log: %w", err)
		}
		if err := tx.Where("project_id = ?", p.ID).Delete(&models.GeocodeQueue{}).Error; err != nil {
			return fmt.Errorf("failed to delete queue rows: %w", err)
		}
		if err := tx.Unscoped().Delete(&models.Project{}, "id = ?", p.ID).Error; err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		return nil
	})
}

func (s *Service) purgeQueue(ctx context.Context, retentionDays int) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]string{models.QueueStatusDone, models.QueueStatusPermanentFail},
			s.cutoff(retentionDays)).
		Delete(&models.GeocodeQueue{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge geocode queue: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// GetDeleteStats returns statistics about deleted projects
func (s *Service) GetDeleteStats(ctx context.Context, retentionDays int) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	db := s.db.WithContext(ctx)

	var totalDeleted int64
	if err := db.Model(&models.DeleteLog{}).Count(&totalDeleted).Error; err != nil {
		return nil, err
	}
	stats["total_deleted"] = totalDeleted

	var reasonCounts []struct {
		Reason string
		Count  int64
	}
	if err := db.Model(&models.DeleteLog{}).
		Select("reason, count(*) as count").
		Group("reason").
		Scan(&reasonCounts).Error; err != nil {
		return nil, err
	}
	reasonMap := make(map[string]int64)
	for _, rc := range reasonCounts {
		reasonMap[rc.Reason] = rc.Count
	}
	stats["by_reason"] = reasonMap

	var recentDeleted int64
	if err := db.Model(&models.DeleteLog{}).
		Where("deleted_at >= ?", s.now().AddDate(0, 0, -30)).
		Count(&recentDeleted).Error; err != nil {
		return nil, err
	}
	stats["deleted_last_30_days"] = recentDeleted

	var softDeleted int64
	if err := db.Unscoped().Model(&models.Project{}).
		Where("deleted_at IS NOT NULL").
		Count(&softDeleted).Error; err != nil {
		return nil, err
	}
	stats["currently_removed"] = softDeleted

	var expired int64
	if err := db.Unscoped().Model(&models.Project{}).
		Where("deleted_at IS NOT NULL AND deleted_at < ?", s.cutoff(retentionDays)).
		Count(&expired).Error; err != nil {
		return nil, err
	}
	stats["expired_ready_for_deletion"] = expired

	return stats, nil
}

// GetRecentDeleteLogs returns recent delete log entries
func (s *Service) GetRecentDeleteLogs(ctx context.Context, limit int) ([]models.DeleteLog, error) {
	var logs []models.DeleteLog
	err := s.db.WithContext(ctx).Order("deleted_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

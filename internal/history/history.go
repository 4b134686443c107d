package history

import (
	"context"
	"fmt"
	"log"
	"time"

	"tyomaat-portal/internal/models"

	"gorm.io/gorm"
)

// Service records project changes made through the dashboard
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService creates a new history service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DetectChanges compares the stored project with its edited version.
// A nil before means the project is new.
func DetectChanges(before, after *models.Project, at time.Time) []models.ProjectChange {
	if before == nil {
		return []models.ProjectChange{{
			ProjectID:  after.ID,
			ChangeType: models.ChangeTypeNew,
			NewValue:   after.Name,
			DetectedAt: at,
		}}
	}

	changes := []models.ProjectChange{}
	add := func(changeType, oldVal, newVal string) {
		if oldVal == newVal {
			return
		}
		changes = append(changes, models.ProjectChange{
			ProjectID:  after.ID,
			ChangeType: changeType,
			OldValue:   oldVal,
			NewValue:   newVal,
			DetectedAt: at,
		})
	}

	add(models.ChangeTypeName, before.Name, after.Name)
	add(models.ChangeTypeLocation, before.Location, after.Location)
	add(models.ChangeTypeRegion, before.RegionValue(), after.RegionValue())
	add(models.ChangeTypeCity, before.City, after.City)
	add(models.ChangeTypePhase, string(before.Phase), string(after.Phase))
	add(models.ChangeTypeVisibility, fmt.Sprintf("%t", before.IsPublic), fmt.Sprintf("%t", after.IsPublic))
	add(models.ChangeTypeCost, formatFloat(before.EstimatedCost, "%.2f"), formatFloat(after.EstimatedCost, "%.2f"))
	add(models.ChangeTypeCoords, formatCoords(before), formatCoords(after))

	return changes
}

// Record detects and stores the changes between before and after
func (s *Service) Record(ctx context.Context, before, after *models.Project, changedBy string) ([]models.ProjectChange, error) {
	changes := DetectChanges(before, after, s.now())
	if len(changes) == 0 {
		return changes, nil
	}
	for i := range changes {
		changes[i].ChangedBy = changedBy
	}

	if err := s.db.WithContext(ctx).Create(&changes).Error; err != nil {
		return nil, fmt.Errorf("failed to save project changes: %w", err)
	}
	log.Printf("History: recorded %d changes for project %s", len(changes), after.ID)
	return changes, nil
}

// RecordRemoval stores a removal entry for a soft-deleted project
func (s *Service) RecordRemoval(ctx context.Context, p *models.Project, changedBy string) error {
	change := models.ProjectChange{
		ProjectID:  p.ID,
		ChangeType: models.ChangeTypeRemoved,
		OldValue:   p.Name,
		ChangedBy:  changedBy,
		DetectedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&change).Error; err != nil {
		return fmt.Errorf("failed to save removal: %w", err)
	}
	return nil
}

// GetProjectHistory retrieves the changes of one project, newest first
func (s *Service) GetProjectHistory(ctx context.Context, projectID string, limit int) ([]models.ProjectChange, error) {
	var changes []models.ProjectChange
	query := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("detected_at DESC, id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&changes).Error; err != nil {
		return nil, err
	}

	return changes, nil
}

// GetRecentChanges retrieves recent project changes
func (s *Service) GetRecentChanges(ctx context.Context, limit int) ([]models.ProjectChange, error) {
	var changes []models.ProjectChange
	query := s.db.WithContext(ctx).Order("detected_at DESC, id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&changes).Error; err != nil {
		return nil, err
	}

	return changes, nil
}

func formatFloat(v *float64, format string) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf(format, *v)
}

func formatCoords(p *models.Project) string {
	lat, lng, ok := p.Coordinates()
	if !ok {
		return ""
	}
	return fmt.Sprintf("%.6f,%.6f", lat, lng)
}

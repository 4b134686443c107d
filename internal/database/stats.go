package database

import (
	"context"

	"tyomaat-portal/internal/models"
)

// DashboardStats summarizes the catalog for the admin dashboard
type DashboardStats struct {
	TotalProjects   int64            `json:"total_projects"`
	PublicProjects  int64            `json:"public_projects"`
	HiddenProjects  int64            `json:"hidden_projects"`
	Unmappable      int64            `json:"unmappable_projects"`
	DeletedProjects int64            `json:"deleted_projects"`
	ByPhase         map[string]int64 `json:"by_phase"`
	Watches         int64            `json:"watches"`
	EnabledWatches  int64            `json:"enabled_watches"`
	Users           int64            `json:"users"`
}

// GetDashboardStats counts projects, watches and users
func (gdb *GormDB) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	db := gdb.db.WithContext(ctx)
	stats := &DashboardStats{ByPhase: map[string]int64{}}

	if err := db.Model(&models.Project{}).Count(&stats.TotalProjects).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Project{}).Where("is_public = ?", true).Count(&stats.PublicProjects).Error; err != nil {
		return nil, err
	}
	stats.HiddenProjects = stats.TotalProjects - stats.PublicProjects

	if err := db.Model(&models.Project{}).
		Where("latitude IS NULL OR longitude IS NULL").
		Count(&stats.Unmappable).Error; err != nil {
		return nil, err
	}
	if err := db.Unscoped().Model(&models.Project{}).
		Where("deleted_at IS NOT NULL").
		Count(&stats.DeletedProjects).Error; err != nil {
		return nil, err
	}

	var phases []struct {
		Phase string
		Count int64
	}
	if err := db.Model(&models.Project{}).
		Select("phase, count(*) as count").
		Group("phase").
		Scan(&phases).Error; err != nil {
		return nil, err
	}
	for _, p := range phases {
		stats.ByPhase[p.Phase] = p.Count
	}

	if err := db.Model(&models.Watch{}).Count(&stats.Watches).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Watch{}).Where("enabled = ?", true).Count(&stats.EnabledWatches).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.User{}).Count(&stats.Users).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

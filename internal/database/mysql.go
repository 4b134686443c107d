package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tyomaat-portal/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormDB struct {
	db *gorm.DB
}

func NewGormDB(host, port, user, password, dbname string) (*GormDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		user, password, host, port, dbname)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return &GormDB{db: db}, nil
}

// NewGormDBFromDB creates a GormDB wrapper from an existing gorm.DB instance
func NewGormDBFromDB(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database is reachable
func (gdb *GormDB) Ping(ctx context.Context) error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return gdb.db.AutoMigrate(
		&models.Project{},
		&models.Watch{},
		&models.User{},
		&models.GeocodeQueue{},
		&models.ProjectChange{},
		&models.DeleteLog{},
	)
}

// CreateProject inserts a new project, assigning an id when missing
func (gdb *GormDB) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := gdb.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// UpdateProject saves every column of an existing project
func (gdb *GormDB) UpdateProject(ctx context.Context, p *models.Project) error {
	res := gdb.db.WithContext(ctx).Model(p).Select("*").Omit("created_at", "deleted_at").Updates(p)
	if res.Error != nil {
		return fmt.Errorf("failed to update project: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProject returns a project regardless of visibility
func (gdb *GormDB) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	err := gdb.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPublicProject returns a project only when it is public
func (gdb *GormDB) GetPublicProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	err := gdb.db.WithContext(ctx).Where("id = ? AND is_public = ?", id, true).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns all non-deleted projects, newest first
func (gdb *GormDB) ListProjects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	err := gdb.db.WithContext(ctx).Order("created_at DESC").Find(&projects).Error
	return projects, err
}

// ListPublicProjects returns the projects shown in the public catalog, newest first
func (gdb *GormDB) ListPublicProjects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	err := gdb.db.WithContext(ctx).
		Where("is_public = ?", true).
		Order("created_at DESC").
		Find(&projects).Error
	return projects, err
}

// SetProjectVisibility toggles is_public without touching other columns
func (gdb *GormDB) SetProjectVisibility(ctx context.Context, id string, public bool) error {
	res := gdb.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", id).
		Update("is_public", public)
	if res.Error != nil {
		return fmt.Errorf("failed to set visibility: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProjectCoordinates stores a geocoding result
func (gdb *GormDB) SetProjectCoordinates(ctx context.Context, id string, lat, lng float64) error {
	var p models.Project
	p.SetCoordinates(&lat, &lng)
	res := gdb.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"latitude":  lat,
			"longitude": lng,
			"geohash":   p.Geohash,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to set coordinates: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteProject hides a project everywhere; cleanup purges it after the retention period
func (gdb *GormDB) SoftDeleteProject(ctx context.Context, id string) error {
	res := gdb.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Project{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete project: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindNewProjects returns public projects created after since that match the filters, newest first.
// Categorical filters are exact; Q is a case-insensitive substring of name, developer or builder.
func (gdb *GormDB) FindNewProjects(ctx context.Context, f models.WatchFilters, since time.Time) ([]models.Project, error) {
	q := gdb.db.WithContext(ctx).
		Where("is_public = ?", true).
		Where("created_at > ?", since)

	if f.Region != "" {
		q = q.Where("region = ?", f.Region)
	}
	if f.City != "" {
		q = q.Where("city = ?", f.City)
	}
	if f.Phase != "" {
		q = q.Where("phase = ?", f.Phase)
	}
	if f.PropertyType != "" {
		q = q.Where("property_type = ?", f.PropertyType)
	}
	if strings.TrimSpace(f.Q) != "" {
		like := containsPattern(f.Q)
		q = q.Where(
			"(LOWER(name) LIKE ? ESCAPE '"+likeEscape+"' OR LOWER(COALESCE(developer, '')) LIKE ? ESCAPE '"+likeEscape+"' OR LOWER(COALESCE(builder, '')) LIKE ? ESCAPE '"+likeEscape+"')",
			like, like, like,
		)
	}

	var projects []models.Project
	if err := q.Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to query new projects: %w", err)
	}
	return projects, nil
}

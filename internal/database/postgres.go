package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tyomaat-portal/internal/models"

	_ "github.com/lib/pq"
	"gorm.io/datatypes"
)

// DB is the legacy Postgres store. Older rows may carry coordinates in lat/lng
// instead of latitude/longitude; they are normalized when rows are scanned.
type DB struct {
	conn *sql.DB
}

func NewDB(host, port, user, password, dbname, sslmode string) (*DB, error) {
	if sslmode == "" {
		sslmode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// NewDBFromConn wraps an already opened connection
func NewDBFromConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// InitSchema creates the legacy tables if they don't exist
func (db *DB) InitSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS projects (
		id VARCHAR(36) PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		region VARCHAR(100),
		city VARCHAR(100) NOT NULL DEFAULT '',
		phase VARCHAR(32) NOT NULL,
		developer TEXT,
		builder TEXT,
		property_type VARCHAR(100),
		design_disciplines TEXT,
		apartment_count INTEGER,
		floor_area NUMERIC(12, 2),
		estimated_cost NUMERIC(14, 2),
		construction_start DATE,
		notes TEXT NOT NULL DEFAULT '',

		-- lat/lng are the legacy coordinate columns
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION,

		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_projects_created_at ON projects(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_projects_region ON projects(region);

	CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(128) PRIMARY KEY,
		email VARCHAR(320),
		display_name VARCHAR(255),
		last_seen_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS watches (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(128) NOT NULL,
		name VARCHAR(255) NOT NULL,
		filters JSONB NOT NULL DEFAULT '{}',
		frequency VARCHAR(16) NOT NULL DEFAULT 'daily',
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		last_sent_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_watches_enabled ON watches(enabled);
	`
	_, err := db.conn.Exec(query)
	return err
}

const projectColumns = `id, name, location, region, city, phase,
		developer, builder, property_type, design_disciplines,
		apartment_count, floor_area, estimated_cost, construction_start, notes,
		COALESCE(latitude, lat), COALESCE(longitude, lng),
		is_public, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (models.Project, error) {
	var (
		p                 models.Project
		constructionStart sql.NullTime
		lat, lng          sql.NullFloat64
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Location, &p.Region, &p.City, &p.Phase,
		&p.Developer, &p.Builder, &p.PropertyType, &p.DesignDisciplines,
		&p.ApartmentCount, &p.FloorArea, &p.EstimatedCost, &constructionStart, &p.Notes,
		&lat, &lng,
		&p.IsPublic, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	if constructionStart.Valid {
		d := datatypes.Date(constructionStart.Time)
		p.ConstructionStart = &d
	}
	if lat.Valid && lng.Valid {
		p.SetCoordinates(&lat.Float64, &lng.Float64)
	}
	return p, nil
}

func (db *DB) queryProjects(ctx context.Context, query string, args ...interface{}) ([]models.Project, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ListPublicProjects returns the projects shown in the public catalog, newest first
func (db *DB) ListPublicProjects(ctx context.Context) ([]models.Project, error) {
	query := `SELECT ` + projectColumns + `
		FROM projects
		WHERE is_public = TRUE AND deleted_at IS NULL
		ORDER BY created_at DESC`
	return db.queryProjects(ctx, query)
}

// GetPublicProject returns a single public project
func (db *DB) GetPublicProject(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + `
		FROM projects
		WHERE id = $1 AND is_public = TRUE AND deleted_at IS NULL`

	p, err := scanProject(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// projectFilter collects WHERE conditions with positional arguments
type projectFilter struct {
	conditions []string
	args       []interface{}
}

func (pf *projectFilter) add(condition string, args ...interface{}) {
	for _, arg := range args {
		pf.args = append(pf.args, arg)
		condition = strings.Replace(condition, "?", fmt.Sprintf("$%d", len(pf.args)), 1)
	}
	pf.conditions = append(pf.conditions, condition)
}

func (pf *projectFilter) where() string {
	return "WHERE " + strings.Join(pf.conditions, " AND ")
}

// FindNewProjects mirrors GormDB.FindNewProjects for the legacy schema
func (db *DB) FindNewProjects(ctx context.Context, f models.WatchFilters, since time.Time) ([]models.Project, error) {
	pf := &projectFilter{}
	pf.add("is_public = TRUE")
	pf.add("deleted_at IS NULL")
	pf.add("created_at > ?", since)

	if f.Region != "" {
		pf.add("region = ?", f.Region)
	}
	if f.City != "" {
		pf.add("city = ?", f.City)
	}
	if f.Phase != "" {
		pf.add("phase = ?", string(f.Phase))
	}
	if f.PropertyType != "" {
		pf.add("property_type = ?", f.PropertyType)
	}
	if strings.TrimSpace(f.Q) != "" {
		like := containsPattern(f.Q)
		pf.add("(LOWER(name) LIKE ? ESCAPE '"+likeEscape+"' OR LOWER(COALESCE(developer, '')) LIKE ? ESCAPE '"+likeEscape+"' OR LOWER(COALESCE(builder, '')) LIKE ? ESCAPE '"+likeEscape+"')",
			like, like, like)
	}

	query := `SELECT ` + projectColumns + `
		FROM projects
		` + pf.where() + `
		ORDER BY created_at DESC`

	projects, err := db.queryProjects(ctx, query, pf.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query new projects: %w", err)
	}
	return projects, nil
}

// ListEnabledWatches returns every enabled watch in creation order
func (db *DB) ListEnabledWatches(ctx context.Context) ([]models.Watch, error) {
	query := `
		SELECT id, user_id, name, filters, frequency, enabled, last_sent_at, created_at, updated_at
		FROM watches
		WHERE enabled = TRUE
		ORDER BY created_at ASC
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled watches: %w", err)
	}
	defer rows.Close()

	var watches []models.Watch
	for rows.Next() {
		var (
			w          models.Watch
			lastSentAt sql.NullTime
		)
		if err := rows.Scan(&w.ID, &w.UserID, &w.Name, &w.Filters, &w.Frequency, &w.Enabled,
			&lastSentAt, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watch: %w", err)
		}
		if lastSentAt.Valid {
			t := lastSentAt.Time
			w.LastSentAt = &t
		}
		watches = append(watches, w)
	}
	return watches, rows.Err()
}

// MarkWatchSent advances last_sent_at. Older timestamps never overwrite newer ones.
func (db *DB) MarkWatchSent(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE watches
		SET last_sent_at = $1, updated_at = $1
		WHERE id = $2 AND (last_sent_at IS NULL OR last_sent_at < $1)
	`
	if _, err := db.conn.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("failed to mark watch %s sent: %w", id, err)
	}
	return nil
}

// LookupEmail returns the stored email of a user
func (db *DB) LookupEmail(ctx context.Context, userID string) (string, error) {
	var email sql.NullString
	err := db.conn.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if !email.Valid || email.String == "" {
		return "", ErrNotFound
	}
	return email.String, nil
}

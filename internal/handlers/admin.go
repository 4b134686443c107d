package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tyomaat-portal/internal/auth"
	"tyomaat-portal/internal/cache"
	"tyomaat-portal/internal/catalog"
	"tyomaat-portal/internal/cleanup"
	"tyomaat-portal/internal/database"
	"tyomaat-portal/internal/geocode"
	"tyomaat-portal/internal/history"
	"tyomaat-portal/internal/models"
	"tyomaat-portal/internal/scheduler"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// SearchIndexer keeps the search index in step with dashboard writes
type SearchIndexer interface {
	IndexProject(p *models.Project) error
	DeleteProject(id string) error
	Reindex(projects []models.Project) (int, error)
}

// AdminDeps are the optional collaborators of the admin handler. Nil fields disable the related endpoints.
type AdminDeps struct {
	Geocoder        geocode.Geocoder
	GeocodeTimeout  time.Duration
	Cache           cache.Cache
	Search          SearchIndexer
	History         *history.Service
	Cleanup         *cleanup.Service
	Digest          scheduler.DigestRunner
	Scheduler       *scheduler.Scheduler
	Worker          *scheduler.QueueWorker
	CleanupDefaults cleanup.CleanupConfig
}

// AdminHandler handles admin dashboard requests
type AdminHandler struct {
	db   *database.GormDB
	deps AdminDeps
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(db *database.GormDB, deps AdminDeps) *AdminHandler {
	if deps.History == nil {
		deps.History = history.NewService(db.DB())
	}
	if deps.Cleanup == nil {
		var idx cleanup.SearchIndex
		if deps.Search != nil {
			idx = deps.Search
		}
		deps.Cleanup = cleanup.NewService(db.DB(), idx)
	}
	if deps.Cache == nil {
		deps.Cache = cache.Nop{}
	}
	if deps.GeocodeTimeout <= 0 {
		deps.GeocodeTimeout = 15 * time.Second
	}
	if deps.CleanupDefaults.RetentionDays <= 0 {
		deps.CleanupDefaults = cleanup.DefaultCleanupConfig()
	}
	return &AdminHandler{db: db, deps: deps}
}

// projectRequest is the editable part of a project
type projectRequest struct {
	Name              string   `json:"name" binding:"required"`
	Location          string   `json:"location"`
	Region            string   `json:"region"`
	City              string   `json:"city"`
	Phase             string   `json:"phase" binding:"required"`
	Developer         string   `json:"developer"`
	Builder           string   `json:"builder"`
	PropertyType      string   `json:"property_type"`
	DesignDisciplines string   `json:"design_disciplines"`
	ApartmentCount    *int     `json:"apartment_count"`
	FloorArea         *float64 `json:"floor_area"`
	EstimatedCost     *float64 `json:"estimated_cost"`
	ConstructionStart string   `json:"construction_start"` // YYYY-MM-DD
	Notes             string   `json:"notes"`
	IsPublic          bool     `json:"is_public"`
}

func (r *projectRequest) apply(p *models.Project) error {
	phase := models.Phase(strings.TrimSpace(r.Phase))
	if !phase.Valid() {
		return errors.New("invalid phase")
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return errors.New("name is required")
	}

	var start *datatypes.Date
	if s := strings.TrimSpace(r.ConstructionStart); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return errors.New("construction_start must be YYYY-MM-DD")
		}
		d := datatypes.Date(t)
		start = &d
	}

	p.Name = name
	p.Location = strings.TrimSpace(r.Location)
	p.Region = models.StringPtr(strings.TrimSpace(r.Region))
	p.City = strings.TrimSpace(r.City)
	p.Phase = phase
	p.Developer = models.StringPtr(strings.TrimSpace(r.Developer))
	p.Builder = models.StringPtr(strings.TrimSpace(r.Builder))
	p.PropertyType = models.StringPtr(strings.TrimSpace(r.PropertyType))
	p.DesignDisciplines = models.StringPtr(strings.TrimSpace(r.DesignDisciplines))
	p.ApartmentCount = r.ApartmentCount
	p.FloorArea = r.FloorArea
	p.EstimatedCost = r.EstimatedCost
	p.ConstructionStart = start
	p.Notes = strings.TrimSpace(r.Notes)
	p.IsPublic = r.IsPublic
	return nil
}

// Geocode outcome reported to the dashboard
const (
	GeocodeOK        = "ok"
	GeocodeQueued    = "queued"
	GeocodeNotFound  = "not_found"
	GeocodeSkipped   = "skipped"
	GeocodeUnchanged = "unchanged"
)

// geocode resolves the project address. A failure leaves the coordinates empty and
// returns the error so the caller can queue a retry once the project is stored.
func (h *AdminHandler) geocode(ctx context.Context, p *models.Project) error {
	address := p.Address()
	if address == "" || h.deps.Geocoder == nil {
		p.SetCoordinates(nil, nil)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.deps.GeocodeTimeout)
	defer cancel()

	pt, err := h.deps.Geocoder.Geocode(ctx, address)
	if err != nil {
		log.Printf("Admin: geocode failed for %q: %v", address, err)
		p.SetCoordinates(nil, nil)
		return err
	}
	p.SetCoordinates(&pt.Lat, &pt.Lng)
	return nil
}

// afterGeocode queues or resolves the retry row for a stored project
func (h *AdminHandler) afterGeocode(ctx context.Context, p *models.Project, geoErr error) string {
	if geoErr == nil {
		if _, _, ok := p.Coordinates(); !ok {
			return GeocodeSkipped
		}
		if err := h.db.ResolveGeocode(ctx, p.ID); err != nil {
			log.Printf("Admin: %v", err)
		}
		return GeocodeOK
	}

	permanent := errors.Is(geoErr, geocode.ErrNoResult)
	if err := h.db.EnqueueGeocode(ctx, p.ID, p.Address(), geoErr.Error(), permanent); err != nil {
		log.Printf("Admin: failed to enqueue geocode for %s: %v", p.ID, err)
	}
	if permanent {
		return GeocodeNotFound
	}
	return GeocodeQueued
}

// afterWrite refreshes the search index and the public cache
func (h *AdminHandler) afterWrite(ctx context.Context, p *models.Project) {
	InvalidateCatalog(ctx, h.deps.Cache)
	if h.deps.Search == nil || p == nil {
		return
	}
	if err := h.deps.Search.IndexProject(p); err != nil {
		log.Printf("Admin: failed to index project %s: %v", p.ID, err)
	}
}

func (h *AdminHandler) recordChanges(ctx context.Context, before, after *models.Project, by string) {
	if _, err := h.deps.History.Record(ctx, before, after, by); err != nil {
		log.Printf("Admin: %v", err)
	}
}

func actor(c *gin.Context) string {
	if s, ok := auth.SessionFrom(c); ok {
		return s.Email
	}
	return ""
}

func queryLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}

// ListProjects returns every project including hidden ones, optionally filtered
func (h *AdminHandler) ListProjects(c *gin.Context) {
	projects, err := h.db.ListProjects(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	projects = catalog.Filter(projects, filtersFromQuery(c))

	c.JSON(http.StatusOK, gin.H{
		"projects": projects,
		"count":    len(projects),
	})
}

// GetProject returns a project regardless of visibility
func (h *AdminHandler) GetProject(c *gin.Context) {
	p, err := h.db.GetProject(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

// CreateProject stores a new project and geocodes its address
func (h *AdminHandler) CreateProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := &models.Project{}
	if err := req.apply(p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	geoErr := h.geocode(ctx, p)

	if err := h.db.CreateProject(ctx, p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Printf("Admin: created project %s (%s)", p.ID, p.Name)

	status := h.afterGeocode(ctx, p, geoErr)
	h.recordChanges(ctx, nil, p, actor(c))
	h.afterWrite(ctx, p)

	c.JSON(http.StatusCreated, gin.H{
		"project":        p,
		"geocode_status": status,
	})
}

// UpdateProject replaces the editable fields. The address is geocoded again only when it changed.
func (h *AdminHandler) UpdateProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	before, err := h.db.GetProject(ctx, c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	after := *before
	if err := req.apply(&after); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	addressChanged := after.Address() != before.Address()
	var geoErr error
	if addressChanged {
		geoErr = h.geocode(ctx, &after)
	}

	if err := h.db.UpdateProject(ctx, &after); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := GeocodeUnchanged
	if addressChanged {
		status = h.afterGeocode(ctx, &after, geoErr)
	}
	h.recordChanges(ctx, before, &after, actor(c))
	h.afterWrite(ctx, &after)

	c.JSON(http.StatusOK, gin.H{
		"project":        after,
		"geocode_status": status,
	})
}

// SetVisibility publishes or hides a project
func (h *AdminHandler) SetVisibility(c *gin.Context) {
	var req struct {
		IsPublic *bool `json:"is_public" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	before, err := h.db.GetProject(ctx, c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.SetProjectVisibility(ctx, before.ID, *req.IsPublic); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	after := *before
	after.IsPublic = *req.IsPublic
	h.recordChanges(ctx, before, &after, actor(c))
	h.afterWrite(ctx, &after)

	c.JSON(http.StatusOK, gin.H{"id": after.ID, "is_public": after.IsPublic})
}

// DeleteProject soft-deletes a project; cleanup purges it after the retention period
func (h *AdminHandler) DeleteProject(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.db.GetProject(ctx, c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.SoftDeleteProject(ctx, p.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Printf("Admin: deleted project %s (%s)", p.ID, p.Name)

	if err := h.deps.History.RecordRemoval(ctx, p, actor(c)); err != nil {
		log.Printf("Admin: %v", err)
	}
	InvalidateCatalog(ctx, h.deps.Cache)
	if h.deps.Search != nil {
		if err := h.deps.Search.DeleteProject(p.ID); err != nil {
			log.Printf("Admin: failed to remove %s from index: %v", p.ID, err)
		}
	}

	c.Status(http.StatusNoContent)
}

// GetStats returns catalog, queue and deletion statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats := make(map[string]interface{})

	dashboard, err := h.db.GetDashboardStats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats["catalog"] = dashboard

	if queue, err := h.db.GeocodeQueueStats(ctx); err != nil {
		log.Printf("Admin: failed to get queue stats: %v", err)
	} else {
		stats["geocode_queue"] = queue
	}

	if deleteStats, err := h.deps.Cleanup.GetDeleteStats(ctx, h.deps.CleanupDefaults.RetentionDays); err != nil {
		log.Printf("Admin: failed to get delete stats: %v", err)
	} else {
		stats["deletions"] = deleteStats
	}

	var recentChanges int64
	h.db.DB().WithContext(ctx).Model(&models.ProjectChange{}).
		Where("detected_at >= ?", time.Now().UTC().AddDate(0, 0, -7)).
		Count(&recentChanges)
	stats["changes"] = map[string]interface{}{"last_7_days": recentChanges}

	if h.deps.Scheduler != nil {
		stats["scheduled_jobs"] = h.deps.Scheduler.Entries()
	}

	c.JSON(http.StatusOK, stats)
}

// GetRecentChanges returns the latest project changes
func (h *AdminHandler) GetRecentChanges(c *gin.Context) {
	changes, err := h.deps.History.GetRecentChanges(c.Request.Context(), queryLimit(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"changes": changes,
		"count":   len(changes),
	})
}

// GetProjectHistory returns the change history of one project
func (h *AdminHandler) GetProjectHistory(c *gin.Context) {
	projectID := c.Param("id")
	changes, err := h.deps.History.GetProjectHistory(c.Request.Context(), projectID, queryLimit(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"project_id": projectID,
		"changes":    changes,
		"count":      len(changes),
	})
}

// GetGeocodeQueue lists queue rows, optionally by status
func (h *AdminHandler) GetGeocodeQueue(c *gin.Context) {
	ctx := c.Request.Context()
	items, err := h.db.ListGeocodeQueue(ctx, c.Query("status"), queryLimit(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var stats interface{}
	if h.deps.Worker != nil {
		stats = h.deps.Worker.GetQueueStats(ctx)
	} else if s, err := h.db.GeocodeQueueStats(ctx); err == nil {
		stats = s
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
		"stats": stats,
	})
}

// RetryGeocode puts a project back into the queue with a fresh attempt budget
func (h *AdminHandler) RetryGeocode(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.db.GetProject(ctx, c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if p.Address() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Project has no address"})
		return
	}

	if err := h.db.EnqueueGeocode(ctx, p.ID, p.Address(), "", false); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"project_id": p.ID, "status": models.QueueStatusPending})
}

// RunCleanup purges expired soft-deleted projects
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	var req struct {
		RetentionDays    int  `json:"retention_days"`
		MaxDeletionCount int  `json:"max_deletion_count"`
		DryRun           bool `json:"dry_run"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	config := h.deps.CleanupDefaults
	if req.RetentionDays > 0 {
		config.RetentionDays = req.RetentionDays
	}
	if req.MaxDeletionCount > 0 {
		config.MaxDeletionCount = req.MaxDeletionCount
	}
	config.DryRun = req.DryRun

	log.Printf("Admin: Running cleanup (retention: %d days, max: %d, dry-run: %v)",
		config.RetentionDays, config.MaxDeletionCount, config.DryRun)

	result, err := h.deps.Cleanup.PhysicallyDelete(c.Request.Context(), config)
	if err != nil {
		log.Printf("Admin: Cleanup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !result.DryRun && result.DeletedCount > 0 {
		InvalidateCatalog(c.Request.Context(), h.deps.Cache)
	}

	c.JSON(http.StatusOK, result)
}

// GetDeleteLogs returns recent delete log entries
func (h *AdminHandler) GetDeleteLogs(c *gin.Context) {
	logs, err := h.deps.Cleanup.GetRecentDeleteLogs(c.Request.Context(), queryLimit(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// RunDigests triggers the digest job. debug=1 evaluates without sending.
func (h *AdminHandler) RunDigests(c *gin.Context) {
	if h.deps.Digest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Digest job is not configured"})
		return
	}

	debug := c.Query("debug") == "1"
	log.Printf("Admin: Manual digest trigger (debug: %v)", debug)

	result, err := h.deps.Digest.Run(c.Request.Context(), debug)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ReindexSearch rebuilds the search index from the public projects
func (h *AdminHandler) ReindexSearch(c *gin.Context) {
	if h.deps.Search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Search is not configured"})
		return
	}

	projects, err := h.db.ListPublicProjects(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	count, err := h.deps.Search.Reindex(projects)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	log.Printf("Admin: reindexed %d projects", count)
	c.JSON(http.StatusOK, gin.H{"indexed": count})
}

// OnGeocodeResolved refreshes derived state after the queue worker stored coordinates
func (h *AdminHandler) OnGeocodeResolved(projectID string) {
	ctx := context.Background()
	if h.deps.Search == nil {
		InvalidateCatalog(ctx, h.deps.Cache)
		return
	}
	p, err := h.db.GetProject(ctx, projectID)
	if err != nil {
		log.Printf("Admin: failed to reload %s after geocode: %v", projectID, err)
		InvalidateCatalog(ctx, h.deps.Cache)
		return
	}
	h.afterWrite(ctx, p)
}

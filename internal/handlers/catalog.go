package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tyomaat-portal/internal/cache"
	"tyomaat-portal/internal/catalog"
	"tyomaat-portal/internal/database"
	"tyomaat-portal/internal/models"
	"tyomaat-portal/internal/search"

	"github.com/gin-gonic/gin"
)

const catalogCacheKey = "catalog:public"

// CatalogStore reads the public catalog. Both the GORM store and the legacy Postgres store satisfy it.
type CatalogStore interface {
	ListPublicProjects(ctx context.Context) ([]models.Project, error)
	GetPublicProject(ctx context.Context, id string) (*models.Project, error)
}

// ProjectSearcher runs filtered full-text searches
type ProjectSearcher interface {
	FilterSearch(params search.FilterParams) (*search.SearchResult, error)
}

// CatalogHandler serves the public project list, map clusters and search
type CatalogHandler struct {
	store    CatalogStore
	cache    cache.Cache
	ttl      time.Duration
	searcher ProjectSearcher
}

// NewCatalogHandler creates a new catalog handler. c and searcher may be nil.
func NewCatalogHandler(store CatalogStore, c cache.Cache, ttl time.Duration, searcher ProjectSearcher) *CatalogHandler {
	if c == nil {
		c = cache.Nop{}
	}
	return &CatalogHandler{store: store, cache: c, ttl: ttl, searcher: searcher}
}

// InvalidateCatalog drops the cached public list after a write
func InvalidateCatalog(ctx context.Context, c cache.Cache) {
	if c == nil {
		return
	}
	if err := c.Delete(ctx, catalogCacheKey); err != nil {
		log.Printf("Catalog: failed to invalidate cache: %v", err)
	}
}

func (h *CatalogHandler) publicProjects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	hit, err := cache.GetJSON(ctx, h.cache, catalogCacheKey, &projects)
	if err != nil {
		log.Printf("Catalog: cache read failed: %v", err)
	}
	if hit {
		return projects, nil
	}

	projects, err = h.store.ListPublicProjects(ctx)
	if err != nil {
		return nil, err
	}
	if h.ttl > 0 {
		if err := cache.SetJSON(ctx, h.cache, catalogCacheKey, projects, h.ttl); err != nil {
			log.Printf("Catalog: cache write failed: %v", err)
		}
	}
	return projects, nil
}

func filtersFromQuery(c *gin.Context) catalog.Filters {
	return catalog.Filters{
		Q:            strings.TrimSpace(c.Query("q")),
		Region:       strings.TrimSpace(c.Query("region")),
		City:         strings.TrimSpace(c.Query("city")),
		Phase:        models.Phase(strings.TrimSpace(c.Query("phase"))),
		PropertyType: strings.TrimSpace(c.Query("property_type")),
	}
}

func boundsFromQuery(c *gin.Context) (*catalog.Bounds, error) {
	return catalog.ParseBounds(c.Query("north"), c.Query("south"), c.Query("east"), c.Query("west"))
}

func queryBool(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}

// ListProjects returns the filtered, paginated list with the option sets
func (h *CatalogHandler) ListProjects(c *gin.Context) {
	bounds, err := boundsFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	batches, err := strconv.Atoi(c.DefaultQuery("batches", "1"))
	if err != nil || batches < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batches must be a positive integer"})
		return
	}

	projects, err := h.publicProjects(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	q := catalog.Query{
		Filters:    filtersFromQuery(c),
		LimitToMap: queryBool(c, "limit_to_map"),
		Bounds:     bounds,
		Batches:    batches,
	}
	page := catalog.Apply(projects, q)

	c.JSON(http.StatusOK, gin.H{
		"items":    page.Items,
		"total":    page.Total,
		"visible":  page.Visible,
		"has_more": page.HasMore,
		"options":  catalog.BuildOptions(projects, q.Filters.Region),
	})
}

// GetProject returns a single public project
func (h *CatalogHandler) GetProject(c *gin.Context) {
	p, err := h.store.GetPublicProject(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	_, _, mappable := p.Coordinates()
	c.JSON(http.StatusOK, catalog.Item{Project: *p, Unmappable: !mappable})
}

// MapClusters groups the filtered projects inside the viewport into geohash cells
func (h *CatalogHandler) MapClusters(c *gin.Context) {
	bounds, err := boundsFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	zoom, err := strconv.Atoi(c.DefaultQuery("zoom", "6"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid zoom"})
		return
	}

	projects, err := h.publicProjects(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	matched := catalog.Filter(projects, filtersFromQuery(c))
	unmappable := 0
	for i := range matched {
		if _, _, ok := matched[i].Coordinates(); !ok {
			unmappable++
		}
	}

	precision := catalog.PrecisionForZoom(zoom)
	c.JSON(http.StatusOK, gin.H{
		"precision":  precision,
		"clusters":   catalog.Clusters(matched, bounds, precision),
		"unmappable": unmappable,
	})
}

// Search runs a full-text query through the search index
func (h *CatalogHandler) Search(c *gin.Context) {
	if h.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Search is not configured"})
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	offset, _ := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	result, err := h.searcher.FilterSearch(search.FilterParams{
		Filters: filtersFromQuery(c),
		SortBy:  c.Query("sort"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		log.Printf("Catalog: search failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

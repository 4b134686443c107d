package search

import (
	"fmt"
	"strings"

	"tyomaat-portal/internal/models"

	"github.com/meilisearch/meilisearch-go"
)

type SearchClient struct {
	client *meilisearch.Client
	index  string
}

func NewSearchClient(host, apiKey string) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})

	return &SearchClient{
		client: client,
		index:  "projects",
	}
}

// ProjectDocument is the indexed shape of a public project
type ProjectDocument struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Location     string   `json:"location"`
	Region       string   `json:"region"`
	City         string   `json:"city"`
	Phase        string   `json:"phase"`
	Developer    string   `json:"developer"`
	Builder      string   `json:"builder"`
	PropertyType string   `json:"property_type"`
	Notes        string   `json:"notes"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Geohash      string   `json:"geohash"`
	CreatedAt    int64    `json:"created_at"`
}

// NewProjectDocument flattens p for indexing
func NewProjectDocument(p *models.Project) ProjectDocument {
	return ProjectDocument{
		ID:           p.ID,
		Name:         p.Name,
		Location:     p.Location,
		Region:       p.RegionValue(),
		City:         p.City,
		Phase:        string(p.Phase),
		Developer:    p.DeveloperValue(),
		Builder:      p.BuilderValue(),
		PropertyType: p.PropertyTypeValue(),
		Notes:        p.Notes,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		Geohash:      p.Geohash,
		CreatedAt:    p.CreatedAt.Unix(),
	}
}

// InitIndex initializes the Meilisearch index
func (s *SearchClient) InitIndex() error {
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	// Ignore error if index already exists
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create index: %w", err)
	}

	_, err = s.client.Index(s.index).UpdateSearchableAttributes(&[]string{
		"name",
		"location",
		"city",
		"region",
		"developer",
		"builder",
		"property_type",
		"notes",
	})
	if err != nil {
		return fmt.Errorf("failed to update searchable attributes: %w", err)
	}

	_, err = s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"region",
		"city",
		"phase",
		"property_type",
		"geohash",
	})
	if err != nil {
		return fmt.Errorf("failed to update filterable attributes: %w", err)
	}

	_, err = s.client.Index(s.index).UpdateSortableAttributes(&[]string{
		"created_at",
		"name",
	})
	if err != nil {
		return fmt.Errorf("failed to update sortable attributes: %w", err)
	}

	return nil
}

// IndexProject adds or replaces a project. Hidden projects are removed from the index instead.
func (s *SearchClient) IndexProject(p *models.Project) error {
	if !p.IsPublic || p.DeletedAt.Valid {
		return s.DeleteProject(p.ID)
	}
	_, err := s.client.Index(s.index).AddDocuments([]ProjectDocument{NewProjectDocument(p)})
	return err
}

// IndexProjects indexes the public projects of the slice
func (s *SearchClient) IndexProjects(projects []models.Project) error {
	docs := make([]ProjectDocument, 0, len(projects))
	for i := range projects {
		if projects[i].IsPublic {
			docs = append(docs, NewProjectDocument(&projects[i]))
		}
	}
	if len(docs) == 0 {
		return nil
	}
	_, err := s.client.Index(s.index).AddDocuments(docs)
	return err
}

// DeleteProject removes a project from the index
func (s *SearchClient) DeleteProject(id string) error {
	_, err := s.client.Index(s.index).DeleteDocument(id)
	return err
}

// Reindex replaces the whole index with the given projects
func (s *SearchClient) Reindex(projects []models.Project) (int, error) {
	if _, err := s.client.Index(s.index).DeleteAllDocuments(); err != nil {
		return 0, fmt.Errorf("failed to clear index: %w", err)
	}
	count := 0
	for i := range projects {
		if projects[i].IsPublic {
			count++
		}
	}
	if err := s.IndexProjects(projects); err != nil {
		return 0, fmt.Errorf("failed to index projects: %w", err)
	}
	return count, nil
}

// SearchRequest represents advanced search parameters
type SearchRequest struct {
	Query        string
	Limit        int64
	Offset       int64
	Filter       []string
	Sort         []string
	FacetsFilter []string
}

// SearchResult represents search results with facets
type SearchResult struct {
	Hits           []ProjectDocument      `json:"hits"`
	TotalHits      int64                  `json:"total_hits"`
	Facets         map[string]interface{} `json:"facets,omitempty"`
	ProcessingTime int64                  `json:"processing_time_ms"`
}

// AdvancedSearch performs search with facets and filters
func (s *SearchClient) AdvancedSearch(req SearchRequest) (*SearchResult, error) {
	if req.Limit == 0 {
		req.Limit = 20
	}

	searchReq := &meilisearch.SearchRequest{
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if len(req.Filter) > 0 {
		searchReq.Filter = strings.Join(req.Filter, " AND ")
	}
	if len(req.Sort) > 0 {
		searchReq.Sort = req.Sort
	}
	if len(req.FacetsFilter) > 0 {
		searchReq.Facets = req.FacetsFilter
	}

	searchRes, err := s.client.Index(s.index).Search(req.Query, searchReq)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]ProjectDocument, 0, len(searchRes.Hits))
	for _, hit := range searchRes.Hits {
		if m, ok := hit.(map[string]interface{}); ok {
			hits = append(hits, parseProjectFromHit(m))
		}
	}

	var facets map[string]interface{}
	if searchRes.FacetDistribution != nil {
		facets, _ = searchRes.FacetDistribution.(map[string]interface{})
	}

	return &SearchResult{
		Hits:           hits,
		TotalHits:      searchRes.EstimatedTotalHits,
		Facets:         facets,
		ProcessingTime: searchRes.ProcessingTimeMs,
	}, nil
}

func parseProjectFromHit(m map[string]interface{}) ProjectDocument {
	doc := ProjectDocument{
		ID:           getString(m, "id"),
		Name:         getString(m, "name"),
		Location:     getString(m, "location"),
		Region:       getString(m, "region"),
		City:         getString(m, "city"),
		Phase:        getString(m, "phase"),
		Developer:    getString(m, "developer"),
		Builder:      getString(m, "builder"),
		PropertyType: getString(m, "property_type"),
		Notes:        getString(m, "notes"),
		Geohash:      getString(m, "geohash"),
	}
	if lat, ok := m["latitude"].(float64); ok {
		doc.Latitude = &lat
	}
	if lng, ok := m["longitude"].(float64); ok {
		doc.Longitude = &lng
	}
	if created, ok := m["created_at"].(float64); ok {
		doc.CreatedAt = int64(created)
	}
	return doc
}

// getString safely extracts a string from map
func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}

package search

import (
	"fmt"
	"strings"

	"tyomaat-portal/internal/models"
)

type FilterParams struct {
	Query   string
	Filters models.WatchFilters
	SortBy  string
	Limit   int64
	Offset  int64
}

// BuildFilter turns the categorical catalog filters into a Meilisearch filter list.
// The free-text term is not part of it; it goes to the query string.
func BuildFilter(f models.WatchFilters) []string {
	var filters []string
	add := func(field, value string) {
		if value == "" {
			return
		}
		filters = append(filters, fmt.Sprintf("%s = %s", field, quote(value)))
	}
	add("region", f.Region)
	add("city", f.City)
	add("phase", string(f.Phase))
	add("property_type", f.PropertyType)
	return filters
}

// FilterSearch performs a search narrowed by the catalog filters
func (s *SearchClient) FilterSearch(params FilterParams) (*SearchResult, error) {
	query := params.Query
	if query == "" {
		query = params.Filters.Q
	}

	var sort []string
	if params.SortBy != "" {
		sort = []string{params.SortBy}
	}

	return s.AdvancedSearch(SearchRequest{
		Query:  query,
		Limit:  params.Limit,
		Offset: params.Offset,
		Filter: BuildFilter(params.Filters),
		Sort:   sort,
	})
}

func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

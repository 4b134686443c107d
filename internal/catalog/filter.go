package catalog

import (
	"strings"

	"tyomaat-portal/internal/models"
)

// Filters is the active filter set of the catalog. The same shape is stored on watches.
type Filters = models.WatchFilters

// Match reports whether p passes every selected filter.
// Categorical filters compare the stored value exactly; region and property type
// treat nil as "". The text term is matched case-insensitively as a substring.
func Match(p *models.Project, f Filters) bool {
	if f.Region != "" && p.RegionValue() != f.Region {
		return false
	}
	if f.City != "" && p.City != f.City {
		return false
	}
	if f.Phase != "" && p.Phase != f.Phase {
		return false
	}
	if f.PropertyType != "" && p.PropertyTypeValue() != f.PropertyType {
		return false
	}

	term := strings.ToLower(strings.TrimSpace(f.Q))
	if term == "" {
		return true
	}
	return strings.Contains(searchText(p), term)
}

// Filter returns the matching projects in their original order
func Filter(projects []models.Project, f Filters) []models.Project {
	out := make([]models.Project, 0, len(projects))
	for i := range projects {
		if Match(&projects[i], f) {
			out = append(out, projects[i])
		}
	}
	return out
}

func searchText(p *models.Project) string {
	fields := []string{
		p.Name,
		p.RegionValue(),
		p.City,
		string(p.Phase),
		p.Location,
		p.DeveloperValue(),
		p.BuilderValue(),
		p.PropertyTypeValue(),
		p.Notes,
	}
	return strings.ToLower(strings.Join(fields, " "))
}

package catalog

import (
	"tyomaat-portal/internal/models"
)

// BatchSize is the number of list items revealed per "show more"
const BatchSize = 20

// Item is a project as shown in the list
type Item struct {
	models.Project
	Unmappable bool `json:"unmappable"`
}

// Page is the visible slice of the filtered list
type Page struct {
	Items   []Item `json:"items"`
	Total   int    `json:"total"`
	Visible int    `json:"visible"`
	HasMore bool   `json:"has_more"`
}

// Query is everything that decides which projects are listed
type Query struct {
	Filters    Filters
	LimitToMap bool
	Bounds     *Bounds
	Batches    int
}

// Apply filters projects, applies the viewport and cuts the first Batches batches.
// Projects without coordinates stay in the list even when the viewport is applied.
func Apply(projects []models.Project, q Query) Page {
	batches := q.Batches
	if batches < 1 {
		batches = 1
	}

	matched := make([]Item, 0, len(projects))
	for i := range projects {
		p := &projects[i]
		if !Match(p, q.Filters) {
			continue
		}
		lat, lng, ok := p.Coordinates()
		if ok && q.LimitToMap && q.Bounds != nil && !q.Bounds.Contains(lat, lng) {
			continue
		}
		matched = append(matched, Item{Project: *p, Unmappable: !ok})
	}

	// Cap before multiplying so huge batch counts cannot overflow
	if maxBatches := len(matched)/BatchSize + 1; batches > maxBatches {
		batches = maxBatches
	}
	limit := batches * BatchSize
	if limit > len(matched) {
		limit = len(matched)
	}
	return Page{
		Items:   matched[:limit],
		Total:   len(matched),
		Visible: limit,
		HasMore: limit < len(matched),
	}
}

// View keeps the list state between interactions. Changing the filters, the
// map toggle or the viewport starts over from the first batch.
type View struct {
	query Query
}

func NewView() *View {
	return &View{query: Query{Batches: 1}}
}

// Query returns the current state
func (v *View) Query() Query {
	return v.query
}

func (v *View) SetFilters(f Filters) {
	if f == v.query.Filters {
		return
	}
	v.query.Filters = f
	v.reset()
}

func (v *View) SetLimitToMap(on bool) {
	if on == v.query.LimitToMap {
		return
	}
	v.query.LimitToMap = on
	v.reset()
}

func (v *View) SetBounds(b *Bounds) {
	if sameBounds(v.query.Bounds, b) {
		return
	}
	if b != nil {
		cp := *b
		b = &cp
	}
	v.query.Bounds = b
	v.reset()
}

// ShowMore reveals the next batch
func (v *View) ShowMore() {
	v.query.Batches++
}

// Page renders the current state over projects
func (v *View) Page(projects []models.Project) Page {
	return Apply(projects, v.query)
}

func (v *View) reset() {
	v.query.Batches = 1
}

func sameBounds(a, b *Bounds) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

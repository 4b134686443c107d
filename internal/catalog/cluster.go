package catalog

import (
	"sort"

	"github.com/mmcloughlin/geohash"

	"tyomaat-portal/internal/models"
)

// Cluster groups the mappable projects sharing a geohash cell
type Cluster struct {
	Geohash    string   `json:"geohash"`
	Count      int      `json:"count"`
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
	ProjectIDs []string `json:"project_ids,omitempty"`
}

// maxClusterIDs caps the ids listed per cluster
const maxClusterIDs = 50

// PrecisionForZoom maps a web-map zoom level to a geohash length
func PrecisionForZoom(zoom int) uint {
	switch {
	case zoom <= 3:
		return 2
	case zoom <= 5:
		return 3
	case zoom <= 8:
		return 4
	case zoom <= 11:
		return 5
	case zoom <= 13:
		return 6
	case zoom <= 15:
		return 7
	default:
		return 8
	}
}

// Clusters buckets mappable projects by geohash prefix. Projects outside b are
// skipped when b is set. Each cluster is placed at the mean of its members.
func Clusters(projects []models.Project, b *Bounds, precision uint) []Cluster {
	if precision < 1 {
		precision = 1
	}
	if precision > models.GeohashPrecision {
		precision = models.GeohashPrecision
	}

	type acc struct {
		count    int
		lat, lng float64
		ids      []string
	}
	cells := make(map[string]*acc)

	for i := range projects {
		p := &projects[i]
		lat, lng, ok := p.Coordinates()
		if !ok {
			continue
		}
		if b != nil && !b.Contains(lat, lng) {
			continue
		}

		cell := p.Geohash
		if uint(len(cell)) < precision {
			cell = geohash.EncodeWithPrecision(lat, lng, models.GeohashPrecision)
		}
		cell = cell[:precision]

		a, ok := cells[cell]
		if !ok {
			a = &acc{}
			cells[cell] = a
		}
		a.count++
		a.lat += lat
		a.lng += lng
		if len(a.ids) < maxClusterIDs {
			a.ids = append(a.ids, p.ID)
		}
	}

	out := make([]Cluster, 0, len(cells))
	for cell, a := range cells {
		out = append(out, Cluster{
			Geohash:    cell,
			Count:      a.count,
			Lat:        a.lat / float64(a.count),
			Lng:        a.lng / float64(a.count),
			ProjectIDs: a.ids,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Geohash < out[j].Geohash
	})
	return out
}

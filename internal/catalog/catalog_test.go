package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tyomaat-portal/internal/models"
)

func project(id, name, city string, region *string, lat, lng *float64) models.Project {
	p := models.Project{
		ID:     id,
		Name:   name,
		City:   city,
		Region: region,
		Phase:  models.PhasePlanning,
	}
	p.SetCoordinates(lat, lng)
	return p
}

func f64(v float64) *float64 { return &v }

func TestMatch_RegionAndText(t *testing.T) {
	uusimaa := models.StringPtr("Uusimaa")
	filters := Filters{Region: "Uusimaa", Q: "Oy"}

	a := project("a", "Asunto Oy Kivi", "Espoo", uusimaa, nil, nil)
	assert.True(t, Match(&a, filters))

	b := project("b", "Koulu", "Espoo", uusimaa, nil, nil)
	assert.False(t, Match(&b, filters), "no oy in searchable text")

	c := project("c", "Asunto Oy Tampere", "Tampere", models.StringPtr("Pirkanmaa"), nil, nil)
	assert.False(t, Match(&c, filters))

	d := project("d", "Kiinteistö", "Espoo", uusimaa, nil, nil)
	d.Builder = models.StringPtr("Rakennus OY")
	assert.True(t, Match(&d, filters), "builder is searchable and case is ignored")

	e := project("e", "Notes", "Espoo", uusimaa, nil, nil)
	e.Notes = "Rakennuttaja Oyj"
	assert.True(t, Match(&e, filters))
}

func TestMatch_NilCoercion(t *testing.T) {
	p := project("a", "Talo", "Oulu", nil, nil, nil)
	assert.True(t, Match(&p, Filters{}))
	assert.False(t, Match(&p, Filters{Region: "Uusimaa"}))
	assert.False(t, Match(&p, Filters{PropertyType: "Kerrostalo"}))

	p.PropertyType = models.StringPtr("Kerrostalo")
	assert.True(t, Match(&p, Filters{PropertyType: "Kerrostalo"}))
	assert.False(t, Match(&p, Filters{PropertyType: "kerrostalo"}), "categorical filters are exact")
	assert.False(t, Match(&p, Filters{Phase: "construction_started"}))
	assert.True(t, Match(&p, Filters{Phase: "planning", City: "Oulu"}))
}

func TestBuildOptions(t *testing.T) {
	uusimaa := models.StringPtr("Uusimaa")
	projects := []models.Project{
		project("1", "a", "Vantaa", uusimaa, nil, nil),
		project("2", "b", "Espoo", uusimaa, nil, nil),
		project("3", "c", "Espoo", uusimaa, nil, nil),
		project("4", "d", "Åland", models.StringPtr("Ahvenanmaa"), nil, nil),
		project("5", "e", "Ähtäri", models.StringPtr("Etelä-Pohjanmaa"), nil, nil),
		project("6", "f", "", nil, nil, nil),
	}
	projects[1].PropertyType = models.StringPtr("Rivitalo")
	projects[2].PropertyType = models.StringPtr("Kerrostalo")
	projects[3].Phase = models.PhaseConstructionStarted

	opts := BuildOptions(projects, "")
	assert.Equal(t, []string{"Ahvenanmaa", "Etelä-Pohjanmaa", "Uusimaa"}, opts.Regions)
	assert.Equal(t, []string{"Espoo", "Vantaa", "Åland", "Ähtäri"}, opts.Cities)
	assert.Equal(t, []string{"Kerrostalo", "Rivitalo"}, opts.PropertyTypes)
	require.Len(t, opts.Phases, 2)
	assert.Equal(t, Option{Value: "planning", Label: "Suunnitteilla"}, opts.Phases[0])
	assert.Equal(t, "Rakentaminen alkanut", opts.Phases[1].Label)

	opts = BuildOptions(projects, "Uusimaa")
	assert.Equal(t, []string{"Espoo", "Vantaa"}, opts.Cities)
	assert.Len(t, opts.Regions, 3, "regions are not narrowed")
}

func TestSortFinnish(t *testing.T) {
	values := []string{"Örebro", "Ähtäri", "Åland", "espoo", "Turku"}
	SortFinnish(values)
	assert.Equal(t, []string{"espoo", "Turku", "Åland", "Ähtäri", "Örebro"}, values)
}

func TestParseBounds(t *testing.T) {
	b, err := ParseBounds("", "", "", "")
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = ParseBounds("60.3", "60.1", "25.1", "24.8")
	require.NoError(t, err)
	assert.Equal(t, Bounds{North: 60.3, South: 60.1, East: 25.1, West: 24.8}, *b)

	_, err = ParseBounds("60.3", "", "25.1", "24.8")
	assert.ErrorIs(t, err, ErrInvalidBounds)
	_, err = ParseBounds("60.1", "60.3", "25.1", "24.8")
	assert.ErrorIs(t, err, ErrInvalidBounds)
	_, err = ParseBounds("91", "60", "25", "24")
	assert.ErrorIs(t, err, ErrInvalidBounds)
}

func TestBounds_Contains(t *testing.T) {
	b := Bounds{North: 61, South: 60, East: 25, West: 24}
	assert.True(t, b.Contains(60.5, 24.5))
	assert.True(t, b.Contains(61, 25), "edges are inside")
	assert.False(t, b.Contains(62, 24.5))
	assert.False(t, b.Contains(60.5, 26))

	wrap := Bounds{North: 10, South: -10, East: -170, West: 170}
	assert.True(t, wrap.Contains(0, 175))
	assert.True(t, wrap.Contains(0, -175))
	assert.False(t, wrap.Contains(0, 0))
}

func TestApply_UnmappableAlwaysListed(t *testing.T) {
	helsinki := project("hki", "Helsinki site", "Helsinki", nil, f64(60.17), f64(24.94))
	oulu := project("oulu", "Oulu site", "Oulu", nil, f64(65.01), f64(25.47))
	unmapped := project("none", "Somewhere", "Kemi", nil, nil, nil)
	projects := []models.Project{helsinki, oulu, unmapped}
	view := &Bounds{North: 60.3, South: 60.1, East: 25.1, West: 24.8}

	page := Apply(projects, Query{LimitToMap: true, Bounds: view})
	require.Equal(t, 2, page.Total)
	assert.Equal(t, "hki", page.Items[0].ID)
	assert.False(t, page.Items[0].Unmappable)
	assert.Equal(t, "none", page.Items[1].ID)
	assert.True(t, page.Items[1].Unmappable)

	page = Apply(projects, Query{LimitToMap: false, Bounds: view})
	assert.Equal(t, 3, page.Total, "viewport is ignored when the toggle is off")
}

func manyProjects(n int) []models.Project {
	out := make([]models.Project, n)
	for i := range out {
		out[i] = project(fmt.Sprintf("p%02d", i), fmt.Sprintf("Site %d", i), "Espoo", nil, nil, nil)
	}
	return out
}

func TestApply_Pagination(t *testing.T) {
	projects := manyProjects(45)

	page := Apply(projects, Query{})
	assert.Equal(t, 45, page.Total)
	assert.Equal(t, BatchSize, page.Visible)
	assert.Len(t, page.Items, BatchSize)
	assert.True(t, page.HasMore)

	page = Apply(projects, Query{Batches: 3})
	assert.Equal(t, 45, page.Visible)
	assert.False(t, page.HasMore)

	page = Apply(nil, Query{})
	assert.NotNil(t, page.Items)
	assert.Zero(t, page.Total)
}

func TestApply_HugeBatchCount(t *testing.T) {
	projects := manyProjects(45)

	require.NotPanics(t, func() {
		page := Apply(projects, Query{Batches: 461168601842738791})
		assert.Equal(t, 45, page.Visible)
		assert.Len(t, page.Items, 45)
		assert.False(t, page.HasMore)
	})

	page := Apply(manyProjects(40), Query{Batches: 1 << 62})
	assert.Equal(t, 40, page.Visible)
}

func TestView_ResetsOnChange(t *testing.T) {
	projects := manyProjects(60)
	v := NewView()

	v.ShowMore()
	v.ShowMore()
	assert.Equal(t, 60, v.Page(projects).Visible)

	v.SetFilters(Filters{City: "Espoo"})
	assert.Equal(t, 1, v.Query().Batches, "filter change")

	v.ShowMore()
	v.SetFilters(Filters{City: "Espoo"})
	assert.Equal(t, 2, v.Query().Batches, "same filters keep the position")

	v.SetLimitToMap(true)
	assert.Equal(t, 1, v.Query().Batches, "toggle change")

	v.ShowMore()
	b := &Bounds{North: 61, South: 60, East: 25, West: 24}
	v.SetBounds(b)
	assert.Equal(t, 1, v.Query().Batches, "viewport change")

	v.ShowMore()
	v.SetBounds(&Bounds{North: 61, South: 60, East: 25, West: 24})
	assert.Equal(t, 2, v.Query().Batches, "identical viewport")

	b.North = 62
	assert.Equal(t, 61.0, v.Query().Bounds.North, "bounds are copied")

	v.SetBounds(nil)
	assert.Equal(t, 1, v.Query().Batches)
}

func TestClusters(t *testing.T) {
	projects := []models.Project{
		project("a", "A", "Helsinki", nil, f64(60.1699), f64(24.9384)),
		project("b", "B", "Helsinki", nil, f64(60.1700), f64(24.9390)),
		project("c", "C", "Oulu", nil, f64(65.0121), f64(25.4651)),
		project("d", "D", "Kemi", nil, nil, nil),
	}

	clusters := Clusters(projects, nil, 4)
	require.Len(t, clusters, 2)
	assert.Equal(t, 2, clusters[0].Count)
	assert.Equal(t, "ud9w", clusters[0].Geohash)
	assert.ElementsMatch(t, []string{"a", "b"}, clusters[0].ProjectIDs)
	assert.InDelta(t, 60.16995, clusters[0].Lat, 1e-9)
	assert.Equal(t, 1, clusters[1].Count)

	south := &Bounds{North: 61, South: 59, East: 26, West: 23}
	clusters = Clusters(projects, south, 4)
	require.Len(t, clusters, 1)
	assert.Equal(t, 2, clusters[0].Count)

	clusters = Clusters(projects, nil, 20)
	assert.Len(t, clusters, 3)
	assert.Len(t, clusters[0].Geohash, models.GeohashPrecision)
}

func TestPrecisionForZoom(t *testing.T) {
	assert.Equal(t, uint(2), PrecisionForZoom(0))
	assert.Equal(t, uint(4), PrecisionForZoom(7))
	assert.Equal(t, uint(6), PrecisionForZoom(12))
	assert.Equal(t, uint(8), PrecisionForZoom(18))
}

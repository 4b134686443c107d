package search

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tyomaat-portal/internal/models"
)

type fakeMeili struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string][]byte
}

func newFakeMeili(t *testing.T) (*fakeMeili, *httptest.Server) {
	f := &fakeMeili{bodies: map[string][]byte{}}
	task := `{"taskUid":1,"indexUid":"projects","status":"enqueued","type":"documentAdditionOrUpdate","enqueuedAt":"2025-01-01T00:00:00Z"}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.requests = append(f.requests, key)
		f.bodies[key] = body
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch key {
		case "POST /indexes/projects/search":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{
				"hits": [{"id":"p1","name":"Kerrostalo Tapiola","city":"Espoo","region":"Uusimaa","phase":"planning","latitude":60.17,"longitude":24.8,"created_at":1735689600}],
				"estimatedTotalHits": 1,
				"processingTimeMs": 2,
				"query": "tapiola"
			}`))
		default:
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(task))
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeMeili) body(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func TestBuildFilter(t *testing.T) {
	assert.Empty(t, BuildFilter(models.WatchFilters{Q: "only text"}))
	assert.Equal(t, []string{
		`region = "Uusimaa"`,
		`city = "Espoo"`,
		`phase = "planning"`,
		`property_type = "Asuin \"kerrostalo\""`,
	}, BuildFilter(models.WatchFilters{
		Region:       "Uusimaa",
		City:         "Espoo",
		Phase:        "planning",
		PropertyType: `Asuin "kerrostalo"`,
	}))
}

func TestSearchClient_FilterSearch(t *testing.T) {
	fake, srv := newFakeMeili(t)
	client := NewSearchClient(srv.URL, "key")

	res, err := client.FilterSearch(FilterParams{
		Filters: models.WatchFilters{Q: "tapiola", City: "Espoo"},
		Limit:   5,
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	hit := res.Hits[0]
	assert.Equal(t, "p1", hit.ID)
	assert.Equal(t, "Uusimaa", hit.Region)
	require.NotNil(t, hit.Latitude)
	assert.Equal(t, 60.17, *hit.Latitude)
	assert.Equal(t, int64(1735689600), hit.CreatedAt)
	assert.Equal(t, int64(1), res.TotalHits)

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(fake.body("POST /indexes/projects/search"), &sent))
	assert.Equal(t, "tapiola", sent["q"])
	assert.Equal(t, `city = "Espoo"`, sent["filter"])
	assert.Equal(t, float64(5), sent["limit"])
}

func TestSearchClient_ReindexSkipsHidden(t *testing.T) {
	fake, srv := newFakeMeili(t)
	client := NewSearchClient(srv.URL, "key")

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	projects := []models.Project{
		{ID: "p1", Name: "Public", City: "Espoo", Phase: models.PhasePlanning, IsPublic: true, CreatedAt: created},
		{ID: "p2", Name: "Hidden", City: "Espoo", Phase: models.PhasePlanning},
	}

	count, err := client.Reindex(projects)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Contains(t, fake.requests, "DELETE /indexes/projects/documents")

	var docs []ProjectDocument
	require.NoError(t, json.Unmarshal(fake.body("POST /indexes/projects/documents"), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "p1", docs[0].ID)
	assert.Equal(t, created.Unix(), docs[0].CreatedAt)
}

func TestSearchClient_IndexHiddenProjectDeletes(t *testing.T) {
	fake, srv := newFakeMeili(t)
	client := NewSearchClient(srv.URL, "key")

	require.NoError(t, client.IndexProject(&models.Project{ID: "p2", Name: "Hidden"}))
	assert.Contains(t, fake.requests, "DELETE /indexes/projects/documents/p2")
}

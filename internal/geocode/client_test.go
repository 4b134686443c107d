package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tyomaat-portal/internal/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, c cache.Cache) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:           srv.URL,
		UserAgent:         "tyomaat-test",
		RequestsPerSecond: 1000,
		Timeout:           2 * time.Second,
		CacheTTL:          time.Hour,
		FailureThreshold:  2,
		Cooldown:          time.Minute,
	}, c)
}

func TestGeocode_ParsesFirstHit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "fi", r.URL.Query().Get("countrycodes"))
		assert.Equal(t, "Hämeenkatu 1, Tampere", r.URL.Query().Get("q"))
		assert.Equal(t, "tyomaat-test", r.Header.Get("User-Agent"))
		w.Write([]byte(`[{"lat":"61.4981","lon":"23.7610","display_name":"Hämeenkatu"}]`))
	}, nil)

	pt, err := client.Geocode(context.Background(), "Hämeenkatu 1, Tampere")
	require.NoError(t, err)
	assert.InDelta(t, 61.4981, pt.Lat, 1e-9)
	assert.InDelta(t, 23.7610, pt.Lng, 1e-9)
}

func TestGeocode_NoResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, nil)

	_, err := client.Geocode(context.Background(), "Nowhere 999")
	assert.ErrorIs(t, err, ErrNoResult)

	_, err = client.Geocode(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestGeocode_UsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`[{"lat":"60.45","lon":"22.26"}]`))
	}, cache.NewRedisCacheFromClient(rc))

	_, err := client.Geocode(context.Background(), "Aurakatu 1, Turku")
	require.NoError(t, err)
	pt, err := client.Geocode(context.Background(), "  aurakatu 1,   TURKU ")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.InDelta(t, 22.26, pt.Lng, 1e-9)
}

func TestGeocode_CircuitOpensOnUpstreamErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, nil)

	ctx := context.Background()
	_, err := client.Geocode(ctx, "a")
	require.Error(t, err)
	_, err = client.Geocode(ctx, "b")
	require.Error(t, err)

	_, err = client.Geocode(ctx, "c")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	open, failures, total := client.Breaker().GetStatus()
	assert.True(t, open)
	assert.Equal(t, 2, failures)
	assert.Equal(t, 2, total)
}

func TestGeocode_ClientErrorDoesNotTripBreaker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}, nil)

	for i := 0; i < 3; i++ {
		_, err := client.Geocode(context.Background(), "x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	open, _, _ := client.Breaker().GetStatus()
	assert.False(t, open)
}

func TestGeocode_MalformedCoordinates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"lat":"north","lon":"22.26"}]`))
	}, nil)

	_, err := client.Geocode(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoResult)
}

func TestCircuitBreaker_HalfOpensAfterCooldown(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(3, time.Minute)
	cb.now = func() time.Time { return now }

	cb.RecordFailure(503)
	cb.RecordFailure(503)
	assert.True(t, cb.CanProceed())
	cb.RecordSuccess()
	cb.RecordFailure(503)
	cb.RecordFailure(503)
	assert.True(t, cb.CanProceed(), "success resets the consecutive count")

	cb.RecordFailure(0)
	assert.False(t, cb.CanProceed())

	now = now.Add(30 * time.Second)
	assert.False(t, cb.CanProceed())

	now = now.Add(31 * time.Second)
	assert.True(t, cb.CanProceed())
	open, failures, _ := cb.GetStatus()
	assert.False(t, open)
	assert.Zero(t, failures)
}

func TestCircuitBreaker_429OpensImmediately(t *testing.T) {
	cb := NewCircuitBreaker(10, time.Minute)
	cb.RecordFailure(http.StatusTooManyRequests)
	assert.False(t, cb.CanProceed())
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "hämeenkatu 1, tampere", NormalizeAddress("  Hämeenkatu   1,\tTampere "))
	assert.Equal(t, cacheKey("a"), cacheKey(NormalizeAddress(" A ")))
}

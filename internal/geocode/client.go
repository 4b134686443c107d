package geocode

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tyomaat-portal/internal/cache"

	"golang.org/x/time/rate"
)

var (
	// ErrNoResult means the geocoder answered but found no match for the address
	ErrNoResult = errors.New("geocode: no result")
	// ErrCircuitOpen means calls are suspended after repeated upstream failures
	ErrCircuitOpen = errors.New("geocode: circuit open")
)

// Point is a WGS84 position
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Geocoder resolves free-text addresses to coordinates
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Point, error)
}

// Config configures a Nominatim-compatible client
type Config struct {
	BaseURL           string
	UserAgent         string
	RequestsPerSecond float64
	Timeout           time.Duration
	CacheTTL          time.Duration
	FailureThreshold  int
	Cooldown          time.Duration
}

// Client calls a Nominatim-compatible /search endpoint
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      cache.Cache
	cacheTTL   time.Duration
	breaker    *CircuitBreaker
}

// NewClient creates a geocoder client. A nil cache disables caching.
func NewClient(cfg Config, c cache.Cache) *Client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if c == nil {
		c = cache.Nop{}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cache:      c,
		cacheTTL:   cfg.CacheTTL,
		breaker:    NewCircuitBreaker(cfg.FailureThreshold, cfg.Cooldown),
	}
}

// Breaker exposes the circuit breaker for status reporting
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

type searchHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the first match for address, restricted to Finland
func (c *Client) Geocode(ctx context.Context, address string) (Point, error) {
	normalized := NormalizeAddress(address)
	if normalized == "" {
		return Point{}, ErrNoResult
	}

	key := cacheKey(normalized)
	var cached Point
	if ok, err := cache.GetJSON(ctx, c.cache, key, &cached); err == nil && ok {
		return cached, nil
	}

	if !c.breaker.CanProceed() {
		return Point{}, ErrCircuitOpen
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Point{}, fmt.Errorf("geocode: rate limiter: %w", err)
	}

	pt, err := c.search(ctx, address)
	if err != nil {
		return Point{}, err
	}

	if c.cacheTTL > 0 {
		_ = cache.SetJSON(ctx, c.cache, key, pt, c.cacheTTL)
	}
	return pt, nil
}

func (c *Client) search(ctx context.Context, address string) (Point, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	q.Set("countrycodes", "fi")
	q.Set("q", strings.TrimSpace(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return Point{}, fmt.Errorf("geocode: failed to build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "fi")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.breaker.RecordFailure(0)
		}
		return Point{}, fmt.Errorf("geocode: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		c.breaker.RecordFailure(resp.StatusCode)
		return Point{}, fmt.Errorf("geocode: upstream status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Point{}, fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}

	var hits []searchHit
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&hits); err != nil {
		c.breaker.RecordFailure(resp.StatusCode)
		return Point{}, fmt.Errorf("geocode: failed to decode response: %w", err)
	}
	c.breaker.RecordSuccess()

	if len(hits) == 0 {
		return Point{}, ErrNoResult
	}

	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return Point{}, fmt.Errorf("geocode: bad latitude %q: %w", hits[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return Point{}, fmt.Errorf("geocode: bad longitude %q: %w", hits[0].Lon, err)
	}
	return Point{Lat: lat, Lng: lng}, nil
}

// NormalizeAddress lowercases and collapses whitespace so equal addresses share a cache entry
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

func cacheKey(normalized string) string {
	sum := sha1.Sum([]byte(normalized))
	return "geocode:" + hex.EncodeToString(sum[:])
}

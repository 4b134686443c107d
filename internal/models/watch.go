package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Watch is a saved search ("hakuvahti") that triggers periodic digest emails
type Watch struct {
	ID         string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     string       `gorm:"type:varchar(128);not null;index" json:"user_id"`
	Name       string       `gorm:"type:varchar(255);not null" json:"name"`
	Filters    WatchFilters `gorm:"type:json" json:"filters"`
	Frequency  Frequency    `gorm:"type:varchar(16);not null" json:"frequency"`
	Enabled    bool         `gorm:"not null;index" json:"enabled"`
	LastSentAt *time.Time   `json:"last_sent_at"`
	CreatedAt  time.Time    `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Watch) TableName() string {
	return "watches"
}

// Frequency is the digest delivery cadence of a watch
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// Valid reports whether f is a supported cadence
func (f Frequency) Valid() bool {
	return f == FrequencyDaily || f == FrequencyWeekly
}

// Period returns the minimum time between two digests.
// Unknown values fall back to the daily period.
func (f Frequency) Period() time.Duration {
	if f == FrequencyWeekly {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// ErrInvalidFilters is returned when a stored or submitted filter set fails validation
var ErrInvalidFilters = errors.New("invalid watch filters")

// WatchFilters is the closed set of filter keys a watch can carry.
// An empty field means no constraint.
type WatchFilters struct {
	Q            string `json:"q,omitempty"`
	Region       string `json:"region,omitempty"`
	City         string `json:"city,omitempty"`
	Phase        Phase  `json:"phase,omitempty"`
	PropertyType string `json:"property_type,omitempty"`
}

const watchFiltersSchema = `{
	"type": ["object", "null"],
	"additionalProperties": false,
	"properties": {
		"q":             {"type": ["string", "null"], "maxLength": 200},
		"region":        {"type": ["string", "null"], "maxLength": 100},
		"city":          {"type": ["string", "null"], "maxLength": 100},
		"phase":         {"enum": ["planning", "construction_started", "", null]},
		"property_type": {"type": ["string", "null"], "maxLength": 100}
	}
}`

var filtersSchema = jsonschema.MustCompileString("watch_filters.json", watchFiltersSchema)

// ParseWatchFilters decodes and validates a raw filter document
func ParseWatchFilters(data []byte) (WatchFilters, error) {
	var f WatchFilters
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return f, nil
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return f, fmt.Errorf("%w: %v", ErrInvalidFilters, err)
	}
	if err := filtersSchema.Validate(doc); err != nil {
		return f, fmt.Errorf("%w: %v", ErrInvalidFilters, err)
	}
	if doc == nil {
		return f, nil
	}

	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("%w: %v", ErrInvalidFilters, err)
	}
	f.Q = strings.TrimSpace(f.Q)
	f.Region = strings.TrimSpace(f.Region)
	f.City = strings.TrimSpace(f.City)
	f.PropertyType = strings.TrimSpace(f.PropertyType)
	return f, nil
}

// IsEmpty reports whether no filter is set
func (f WatchFilters) IsEmpty() bool {
	return f == WatchFilters{}
}

// Scan implements sql.Scanner; the stored document is validated on the way in.
func (f *WatchFilters) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*f = WatchFilters{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("%w: unsupported column type %T", ErrInvalidFilters, value)
	}

	parsed, err := ParseWatchFilters(data)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Value implements driver.Valuer
func (f WatchFilters) Value() (driver.Value, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

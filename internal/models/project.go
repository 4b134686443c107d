package models

import (
	"strings"
	"time"

	"github.com/mmcloughlin/geohash"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Project struct {
	// Basic info
	ID       string  `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name     string  `gorm:"type:varchar(255);not null" json:"name"`
	Location string  `gorm:"type:text" json:"location"`
	Region   *string `gorm:"type:varchar(100);index" json:"region"`
	City     string  `gorm:"type:varchar(100);index" json:"city"`
	Phase    Phase   `gorm:"type:varchar(32);not null;index" json:"phase"`

	// Attributions
	Developer         *string `gorm:"type:varchar(255)" json:"developer,omitempty"`
	Builder           *string `gorm:"type:varchar(255)" json:"builder,omitempty"`
	PropertyType      *string `gorm:"type:varchar(100);index" json:"property_type,omitempty"`
	DesignDisciplines *string `gorm:"type:text" json:"design_disciplines,omitempty"`

	ApartmentCount    *int            `gorm:"type:int" json:"apartment_count,omitempty"`
	FloorArea         *float64        `gorm:"type:decimal(12,2)" json:"floor_area,omitempty"`
	EstimatedCost     *float64        `gorm:"type:decimal(14,2)" json:"estimated_cost,omitempty"`
	ConstructionStart *datatypes.Date `json:"construction_start,omitempty"`
	Notes             string          `gorm:"type:text" json:"notes,omitempty"`

	// Nil coordinates mean the project cannot be placed on the map.
	Latitude  *float64 `gorm:"type:decimal(10,7)" json:"latitude"`
	Longitude *float64 `gorm:"type:decimal(10,7)" json:"longitude"`
	Geohash   string   `gorm:"type:varchar(12);index" json:"geohash,omitempty"`

	IsPublic bool `gorm:"not null;default:false;index" json:"is_public"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime;index:idx_projects_created_at,sort:desc" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Phase is the construction lifecycle stage of a project
type Phase string

const (
	PhasePlanning            Phase = "planning"
	PhaseConstructionStarted Phase = "construction_started"
)

// Valid reports whether p is one of the known phases
func (p Phase) Valid() bool {
	return p == PhasePlanning || p == PhaseConstructionStarted
}

// Label returns the Finnish display label used in listings and emails
func (p Phase) Label() string {
	switch p {
	case PhasePlanning:
		return "Suunnitteilla"
	case PhaseConstructionStarted:
		return "Rakentaminen alkanut"
	}
	return string(p)
}

func (Project) TableName() string {
	return "projects"
}

// Coordinates returns the project position, ok is false when it cannot be mapped.
func (p *Project) Coordinates() (lat, lng float64, ok bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return 0, 0, false
	}
	return *p.Latitude, *p.Longitude, true
}

// GeohashPrecision is the stored geohash length (about 5m cells)
const GeohashPrecision = 9

// SetCoordinates replaces the position; nil values clear it
func (p *Project) SetCoordinates(lat, lng *float64) {
	if lat == nil || lng == nil {
		p.Latitude, p.Longitude = nil, nil
		p.Geohash = ""
		return
	}
	la, ln := *lat, *lng
	p.Latitude, p.Longitude = &la, &ln
	p.Geohash = geohash.EncodeWithPrecision(la, ln, GeohashPrecision)
}

// BeforeSave keeps the geohash in step with the coordinates
func (p *Project) BeforeSave(tx *gorm.DB) error {
	if lat, lng, ok := p.Coordinates(); ok {
		p.Geohash = geohash.EncodeWithPrecision(lat, lng, GeohashPrecision)
	} else {
		p.Geohash = ""
	}
	return nil
}

// Address returns the text sent to the geocoder
func (p *Project) Address() string {
	parts := make([]string, 0, 2)
	if loc := strings.TrimSpace(p.Location); loc != "" {
		parts = append(parts, loc)
	}
	if city := strings.TrimSpace(p.City); city != "" && !strings.Contains(strings.ToLower(p.Location), strings.ToLower(city)) {
		parts = append(parts, city)
	}
	return strings.Join(parts, ", ")
}

// RegionValue returns the region with nil coerced to ""
func (p *Project) RegionValue() string {
	return deref(p.Region)
}

func (p *Project) DeveloperValue() string {
	return deref(p.Developer)
}

func (p *Project) BuilderValue() string {
	return deref(p.Builder)
}

// PropertyTypeValue returns the property type with nil coerced to ""
func (p *Project) PropertyTypeValue() string {
	return deref(p.PropertyType)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns nil for the empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

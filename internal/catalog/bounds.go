package catalog

import (
	"errors"
	"strconv"
)

// ErrInvalidBounds is returned for incomplete or out-of-range viewports
var ErrInvalidBounds = errors.New("catalog: invalid bounds")

// Bounds is a map viewport in WGS84 degrees. West may be greater than East when the
// viewport crosses the antimeridian.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// ParseBounds reads a viewport from query values. All four empty means no viewport.
func ParseBounds(north, south, east, west string) (*Bounds, error) {
	if north == "" && south == "" && east == "" && west == "" {
		return nil, nil
	}
	vals := make([]float64, 4)
	for i, raw := range []string{north, south, east, west} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, ErrInvalidBounds
		}
		vals[i] = v
	}
	b := &Bounds{North: vals[0], South: vals[1], East: vals[2], West: vals[3]}
	if !b.Valid() {
		return nil, ErrInvalidBounds
	}
	return b, nil
}

// Valid checks latitude ordering and coordinate ranges
func (b Bounds) Valid() bool {
	if b.North < b.South {
		return false
	}
	if b.North > 90 || b.South < -90 {
		return false
	}
	return b.East >= -180 && b.East <= 180 && b.West >= -180 && b.West <= 180
}

// Contains reports whether the point lies inside the viewport, edges included
func (b Bounds) Contains(lat, lng float64) bool {
	if lat < b.South || lat > b.North {
		return false
	}
	if b.West <= b.East {
		return lng >= b.West && lng <= b.East
	}
	return lng >= b.West || lng <= b.East
}

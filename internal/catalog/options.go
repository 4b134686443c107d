package catalog

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"tyomaat-portal/internal/models"
)

// Option is a selectable filter value
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Options are the filter choices derived from the loaded projects
type Options struct {
	Regions       []string `json:"regions"`
	Cities        []string `json:"cities"`
	Phases        []Option `json:"phases"`
	PropertyTypes []string `json:"property_types"`
}

// BuildOptions collects the distinct non-empty values of each filter field.
// Cities are limited to the selected region when one is given.
func BuildOptions(projects []models.Project, region string) Options {
	regions := newValueSet()
	cities := newValueSet()
	phases := newValueSet()
	types := newValueSet()

	for i := range projects {
		p := &projects[i]
		regions.add(p.RegionValue())
		if region == "" || p.RegionValue() == region {
			cities.add(p.City)
		}
		phases.add(string(p.Phase))
		types.add(p.PropertyTypeValue())
	}

	opts := Options{
		Regions:       regions.sorted(),
		Cities:        cities.sorted(),
		PropertyTypes: types.sorted(),
		Phases:        []Option{},
	}
	for _, ph := range []models.Phase{models.PhasePlanning, models.PhaseConstructionStarted} {
		if phases.has(string(ph)) {
			opts.Phases = append(opts.Phases, Option{Value: string(ph), Label: ph.Label()})
		}
	}
	// unknown phase values still show up, after the known ones
	for _, v := range phases.sorted() {
		if !models.Phase(v).Valid() {
			opts.Phases = append(opts.Phases, Option{Value: v, Label: v})
		}
	}
	return opts
}

// SortFinnish sorts values in place using Finnish collation (å, ä, ö after z)
func SortFinnish(values []string) {
	collate.New(language.Finnish).SortStrings(values)
}

type valueSet map[string]struct{}

func newValueSet() valueSet {
	return make(valueSet)
}

func (s valueSet) add(v string) {
	if v == "" {
		return
	}
	s[v] = struct{}{}
}

func (s valueSet) has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s valueSet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	SortFinnish(out)
	return out
}

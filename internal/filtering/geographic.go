// Package filtering narrows a pass's detections to the area of interest
// and attributes the survivors to regional buffer zones.
package filtering

import (
	"github.com/paulmach/orb"

	"github.com/adybbroe/activefires-pp/internal/domain"
	"github.com/adybbroe/activefires-pp/internal/geometry"
)

// Reason says why the geographic filter rejected a detection.
type Reason string

const (
	ReasonOutsideBorders  Reason = "outside_borders"
	ReasonInsideExclusion Reason = "inside_exclusion"
)

// GeoFilter keeps detections inside the national borders and outside
// the exclusion zones.
type GeoFilter struct {
	borders   *geometry.Dataset
	exclusion *geometry.Dataset
}

// NewGeoFilter builds a filter over the given datasets. An empty borders
// dataset keeps nothing; an empty exclusion dataset excludes nothing.
func NewGeoFilter(borders, exclusion *geometry.Dataset) *GeoFilter {
	return &GeoFilter{borders: borders, exclusion: exclusion}
}

// Accept reports whether the detection survives, and the reason when it
// does not. The borders test runs first so a point both outside the
// borders and inside an exclusion zone counts as outside.
func (f *GeoFilter) Accept(d domain.Detection) (bool, Reason) {
	p := orb.Point{d.Longitude, d.Latitude}
	if !f.borders.Contains(p) {
		return false, ReasonOutsideBorders
	}
	if f.exclusion.Contains(p) {
		return false, ReasonInsideExclusion
	}
	return true, ""
}

// Filter applies Accept to every detection, returning the survivors and
// per-reason rejection counts.
func (f *GeoFilter) Filter(detections []domain.Detection) ([]domain.Detection, map[Reason]int) {
	kept := detections[:0:0]
	rejected := make(map[Reason]int)
	for _, d := range detections {
		ok, reason := f.Accept(d)
		if !ok {
			rejected[reason]++
			continue
		}
		kept = append(kept, d)
	}
	return kept, rejected
}

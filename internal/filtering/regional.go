package filtering

import (
	"github.com/paulmach/orb"

	"github.com/adybbroe/activefires-pp/internal/domain"
	"github.com/adybbroe/activefires-pp/internal/geometry"
)

// Attributor assigns detections to regional buffer zones. The zones may
// overlap; a detection in the overlap belongs to every matching zone.
type Attributor struct {
	regions []*geometry.Dataset
}

// NewAttributor builds an attributor over the regional buffer datasets.
// A nil or empty slice yields an attributor that assigns nothing.
func NewAttributor(regions []*geometry.Dataset) *Attributor {
	return &Attributor{regions: regions}
}

// Enabled reports whether any regional datasets are loaded.
func (a *Attributor) Enabled() bool { return len(a.regions) > 0 }

// Regions lists the configured buffer zones in load order.
func (a *Attributor) Regions() []*geometry.Dataset { return a.regions }

// Attribute returns the codes of every buffer zone containing the
// detection: zero, one, or several when zones overlap.
func (a *Attributor) Attribute(d domain.Detection) []string {
	var codes []string
	for _, region := range a.regions {
		if region.Contains(orb.Point{d.Longitude, d.Latitude}) {
			codes = append(codes, region.Code)
		}
	}
	return codes
}

// Group maps region codes to the detections inside that region's buffer
// zone. Detections outside every zone do not appear in the result;
// regions matching no detection have no map entry.
func (a *Attributor) Group(detections []domain.AnnotatedDetection) map[string][]domain.AnnotatedDetection {
	byRegion := make(map[string][]domain.AnnotatedDetection)
	for _, region := range a.regions {
		for _, d := range detections {
			if region.Contains(orb.Point{d.Longitude, d.Latitude}) {
				byRegion[region.Code] = append(byRegion[region.Code], d)
			}
		}
	}
	return byRegion
}

// Lookup returns the dataset for a region code, or nil.
func (a *Attributor) Lookup(code string) *geometry.Dataset {
	for _, region := range a.regions {
		if region.Code == code {
			return region
		}
	}
	return nil
}

// Package convert holds the coordinate and unit transforms applied at
// output-composition time. Both are pure and composable; the canonical
// detection always keeps its original coordinates and units.
package convert

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/wroge/wgs84"
)

// Reprojector transforms a WGS 84 lon/lat point into a target reference
// system. Implementations must be safe for concurrent use.
type Reprojector interface {
	Transform(p orb.Point) (orb.Point, error)
}

// epsgReprojector reprojects via the wgs84 EPSG registry.
type epsgReprojector struct {
	code      int
	transform wgs84.Func
}

// EPSG returns a Reprojector into the given EPSG code. Code 0 and 4326
// return the identity transform. A code missing from the registry is an
// error here, not at transform time: the registry hands back a nil
// system for unknown codes and the raw transform would then silently
// produce wrong coordinates.
func EPSG(code int) (Reprojector, error) {
	if code == 0 || code == 4326 {
		return identity{}, nil
	}

	crs := wgs84.EPSG().Code(code)
	if crs == nil {
		return nil, fmt.Errorf("EPSG:%d is not in the projection registry", code)
	}

	return &epsgReprojector{
		code:      code,
		transform: wgs84.LonLat().To(crs),
	}, nil
}

func (r *epsgReprojector) Transform(p orb.Point) (orb.Point, error) {
	east, north, _ := r.transform(p[0], p[1], 0)
	if math.IsNaN(east) || math.IsNaN(north) || math.IsInf(east, 0) || math.IsInf(north, 0) {
		return orb.Point{}, fmt.Errorf("reprojection to EPSG:%d failed for (%v, %v)", r.code, p[0], p[1])
	}
	return orb.Point{east, north}, nil
}

type identity struct{}

func (identity) Transform(p orb.Point) (orb.Point, error) { return p, nil }

// KelvinToCelsius converts a brightness temperature from kelvin to Celsius.
func KelvinToCelsius(k float64) float64 {
	return k - 273.15
}

// Package geometry loads polygon datasets from shapefiles and answers
// point-in-polygon queries for the geographic filter and the regional
// attributor. The concrete geometry engine (orb's planar predicates) is
// kept behind the Dataset type so filter logic never touches it directly.
package geometry

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/adybbroe/activefires-pp/internal/convert"
)

// Dataset is a named, read-only collection of polygons loaded from one
// source file, used for the lifetime of one pass and reloaded when the
// backing file changes.
type Dataset struct {
	// Name identifies the dataset in logs and, for regional buffers, is
	// the human-readable region name from the shapefile attributes.
	Name string
	// Code is the region code for regional buffer datasets, empty otherwise.
	Code string

	Path    string
	ModTime time.Time

	polygons []orb.Polygon

	// reproject maps WGS 84 lon/lat query points into the dataset's
	// native reference system before the containment test. Nil when the
	// dataset itself is in lon/lat.
	reproject convert.Reprojector
}

// NewDataset builds a dataset directly from polygons, mainly for tests and
// for callers that already hold geometry in lon/lat.
func NewDataset(name string, polygons []orb.Polygon) *Dataset {
	return &Dataset{Name: name, polygons: polygons}
}

// Contains reports whether the lon/lat point falls inside any polygon in
// the dataset. A point inside a polygon's hole ring is outside; disjoint
// areas are separate polygons and a point in any of them counts as
// inside.
func (d *Dataset) Contains(p orb.Point) bool {
	if d.reproject != nil {
		q, err := d.reproject.Transform(p)
		if err != nil {
			return false
		}
		p = q
	}

	for _, poly := range d.polygons {
		if planar.PolygonContains(poly, p) {
			return true
		}
	}
	return false
}

// Empty reports whether the dataset holds no usable polygons.
func (d *Dataset) Empty() bool {
	return len(d.polygons) == 0
}

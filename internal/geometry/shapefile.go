package geometry

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/adybbroe/activefires-pp/internal/convert"
)

// LoadDataset reads a shapefile into a single dataset. All features are
// merged: a point is inside the dataset if it is inside any part of any
// feature. epsg is the native reference system of the shapefile; zero
// means geographic lon/lat.
func LoadDataset(path string, epsg int, logger *slog.Logger) (*Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat shapefile: %w", err)
	}

	polygons, _, err := readShapefile(path, nil, logger)
	if err != nil {
		return nil, err
	}
	if len(polygons) == 0 {
		return nil, fmt.Errorf("shapefile %s holds no usable polygons", path)
	}

	ds := &Dataset{
		Name:     filepath.Base(path),
		Path:     path,
		ModTime:  info.ModTime(),
		polygons: polygons,
	}
	if err := setReprojection(ds, epsg); err != nil {
		return nil, err
	}
	return ds, nil
}

// LoadRegional reads every shapefile in dir matching glob and returns one
// dataset per feature, named and coded from the given attribute fields.
// Datasets come back sorted by code for deterministic iteration.
func LoadRegional(dir, glob string, epsg int, codeField, nameField string, logger *slog.Logger) ([]*Dataset, error) {
	paths, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return nil, fmt.Errorf("glob regional shapefiles: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no regional shapefiles matching %s in %s", glob, dir)
	}

	var datasets []*Dataset
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat shapefile: %w", err)
		}

		var features []feature
		_, features, err = readShapefile(path, &featureOptions{codeField: codeField, nameField: nameField}, logger)
		if err != nil {
			return nil, err
		}

		for _, f := range features {
			ds := &Dataset{
				Name:     f.name,
				Code:     f.code,
				Path:     path,
				ModTime:  info.ModTime(),
				polygons: f.polygons,
			}
			if err := setReprojection(ds, epsg); err != nil {
				return nil, err
			}
			datasets = append(datasets, ds)
		}
	}

	sort.Slice(datasets, func(i, j int) bool { return datasets[i].Code < datasets[j].Code })
	return datasets, nil
}

type feature struct {
	code     string
	name     string
	polygons []orb.Polygon
}

type featureOptions struct {
	codeField string
	nameField string
}

// readShapefile decodes the polygon records of a shapefile. A malformed
// record is skipped with a logged warning rather than aborting the load.
// When opts is non-nil the per-feature attributes are decoded as well.
func readShapefile(path string, opts *featureOptions, logger *slog.Logger) ([]orb.Polygon, []feature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer reader.Close()

	codeIdx, nameIdx := -1, -1
	if opts != nil {
		for i, field := range reader.Fields() {
			switch field.String() {
			case opts.codeField:
				codeIdx = i
			case opts.nameField:
				nameIdx = i
			}
		}
	}

	var (
		polygons []orb.Polygon
		features []feature
	)

	for reader.Next() {
		row, shape := reader.Shape()

		polys, ok := shapeToPolygons(shape)
		if !ok {
			logger.Warn("skipping malformed shapefile record",
				"path", path, "record", row)
			continue
		}

		if opts != nil {
			f := feature{polygons: polys}
			if codeIdx >= 0 {
				f.code = reader.ReadAttribute(row, codeIdx)
			}
			if nameIdx >= 0 {
				f.name = reader.ReadAttribute(row, nameIdx)
			}
			if f.code == "" {
				logger.Warn("regional shapefile record has no region code, skipping",
					"path", path, "record", row)
				continue
			}
			if f.name == "" {
				f.name = f.code
			}
			features = append(features, f)
		}

		polygons = append(polygons, polys...)
	}

	return polygons, features, nil
}

// shapeToPolygons converts a go-shp polygon record into polygons.
// Shapefile rings wind clockwise for exteriors and counter-clockwise for
// holes, so each clockwise ring starts a polygon and the following
// counter-clockwise rings become its holes. Records that are not
// polygons, have degenerate rings, or carry non-finite coordinates are
// rejected.
func shapeToPolygons(shape shp.Shape) ([]orb.Polygon, bool) {
	polyShape, ok := shape.(*shp.Polygon)
	if !ok {
		return nil, false
	}
	if len(polyShape.Points) == 0 {
		return nil, false
	}

	parts := polyShape.Parts
	if len(parts) == 0 {
		parts = []int32{0}
	}

	var polys []orb.Polygon
	for i, start := range parts {
		end := int32(len(polyShape.Points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if end-start < 3 {
			return nil, false
		}

		ring := make(orb.Ring, 0, end-start)
		for _, pt := range polyShape.Points[start:end] {
			if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
				return nil, false
			}
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		if ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}

		if len(polys) == 0 || ring.Orientation() == orb.CW {
			polys = append(polys, orb.Polygon{ring})
			continue
		}
		last := len(polys) - 1
		polys[last] = append(polys[last], ring)
	}

	return polys, true
}

func setReprojection(ds *Dataset, epsg int) error {
	if epsg == 0 || epsg == 4326 {
		return nil
	}
	rp, err := convert.EPSG(epsg)
	if err != nil {
		return fmt.Errorf("dataset %s: %w", ds.Name, err)
	}
	ds.reproject = rp
	return nil
}

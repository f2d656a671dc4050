package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Processing is the per-deployment processing configuration, loaded once
// from a YAML file. It mirrors the configuration surface of the filtering
// pipeline: product allow-list, quality thresholds, polygon dataset
// locations, identity-cache tuning, and output target definitions.
type Processing struct {
	// Timezone is used when rendering local observation times into output
	// file names. Times inside GeoJSON payloads stay in UTC.
	Timezone string `yaml:"timezone"`

	// Products is the allow-list of product names; pass messages for other
	// products are dropped whole.
	Products []string `yaml:"products"`

	Quality  Quality  `yaml:"quality"`
	Identity Identity `yaml:"identity"`
	Geometry Geometry `yaml:"geometry"`

	OutputDir string   `yaml:"output_dir"`
	Targets   []Target `yaml:"targets"`
}

// Quality holds the radiometric thresholds for the false-positive check.
// A nil threshold disables that side of the check.
type Quality struct {
	MinFRPMegawatts *float64 `yaml:"min_frp_mw"`
	MaxTBKelvin     *float64 `yaml:"max_tb_kelvin"`
}

// Identity holds the tuning values for the detection identity cache.
// All three are operational tuning values with no safe defaults, so they
// are required.
type Identity struct {
	CachePath           string  `yaml:"cache_path"`
	ValidityWindowRaw   string  `yaml:"validity_window"`
	SpatialToleranceDeg float64 `yaml:"spatial_tolerance_deg"`

	// ValidityWindow is parsed from ValidityWindowRaw during load.
	ValidityWindow time.Duration `yaml:"-"`
}

// Geometry points at the polygon datasets: the national borders shapefile,
// the exclusion-zone shapefile, and a directory of regional buffer
// shapefiles matched by glob. EPSG is the native reference system of the
// shapefiles; zero means geographic lon/lat (WGS 84).
type Geometry struct {
	BordersPath     string `yaml:"borders"`
	ExclusionPath   string `yaml:"exclusion"`
	RegionalDir     string `yaml:"regional_dir"`
	RegionalGlob    string `yaml:"regional_glob"`
	EPSG            int    `yaml:"epsg"`
	RegionCodeField string `yaml:"region_code_field"`
	RegionNameField string `yaml:"region_name_field"`
}

// Target defines one output artifact per pass: a national variant or the
// regional fan-out. FilePattern placeholders: {platform}, {start_time},
// {start_time:<go layout>}, {end_time...}, and {region} for regional targets.
// Target kinds.
const (
	TargetNational = "national"
	TargetRegional = "regional"
)

type Target struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"` // "national" or "regional"
	FilePattern string `yaml:"file_pattern"`
	EPSG        int    `yaml:"epsg"`       // optional target reference system
	TBCelsius   bool   `yaml:"tb_celsius"` // add a Celsius brightness-temperature property
}

// LoadProcessing reads and validates the processing configuration file.
func LoadProcessing(path string) (*Processing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read processing config: %w", err)
	}

	var p Processing
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse processing config: %w", err)
	}

	if p.Identity.ValidityWindowRaw != "" {
		window, err := time.ParseDuration(p.Identity.ValidityWindowRaw)
		if err != nil {
			return nil, fmt.Errorf("parse identity.validity_window: %w", err)
		}
		p.Identity.ValidityWindow = window
	}

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("processing config %s: %w", path, err)
	}

	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	if p.Geometry.RegionalGlob == "" {
		p.Geometry.RegionalGlob = "*.shp"
	}
	if p.Geometry.RegionCodeField == "" {
		p.Geometry.RegionCodeField = "Kod_omr"
	}
	if p.Geometry.RegionNameField == "" {
		p.Geometry.RegionNameField = "Testomr"
	}

	return &p, nil
}

func (p *Processing) validate() error {
	if len(p.Products) == 0 {
		return errors.New("products allow-list must not be empty")
	}
	if p.Identity.CachePath == "" {
		return errors.New("identity.cache_path is required")
	}
	if p.Identity.ValidityWindow <= 0 {
		return errors.New("identity.validity_window is required and must be positive")
	}
	if p.Identity.SpatialToleranceDeg <= 0 {
		return errors.New("identity.spatial_tolerance_deg is required and must be positive")
	}
	if p.Geometry.BordersPath == "" {
		return errors.New("geometry.borders is required")
	}
	if p.Geometry.ExclusionPath == "" {
		return errors.New("geometry.exclusion is required")
	}
	if p.OutputDir == "" {
		return errors.New("output_dir is required")
	}
	if len(p.Targets) == 0 {
		return errors.New("at least one output target is required")
	}
	for _, t := range p.Targets {
		if t.Name == "" {
			return errors.New("every output target needs a name")
		}
		if t.Kind != TargetNational && t.Kind != TargetRegional {
			return fmt.Errorf("target %s: kind must be national or regional, got %q", t.Name, t.Kind)
		}
		if t.FilePattern == "" {
			return fmt.Errorf("target %s: file_pattern is required", t.Name)
		}
	}
	return nil
}

// Location resolves the configured timezone.
func (p *Processing) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}

// ProductAllowed reports whether the given product name is on the allow-list.
func (p *Processing) ProductAllowed(product string) bool {
	for _, name := range p.Products {
		if name == product {
			return true
		}
	}
	return false
}

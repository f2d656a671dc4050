package geometry

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/adybbroe/activefires-pp/internal/config"
)

// Index owns the polygon datasets for one deployment: national borders,
// exclusion zones, and the regional buffers. It checks backing-file
// modification times before each pass and reloads what changed; a reload
// failure keeps serving the previous copy.
type Index struct {
	cfg    config.Geometry
	logger *slog.Logger

	mu        sync.Mutex
	borders   *Dataset
	exclusion *Dataset
	regional  []*Dataset
}

// NewIndex loads all configured datasets. The borders and exclusion
// datasets are required: without them no detection can be geographically
// filtered, so a load failure here is fatal. Regional buffers are
// optional; a missing regional directory disables regional attribution
// with a logged warning.
func NewIndex(cfg config.Geometry, logger *slog.Logger) (*Index, error) {
	borders, err := LoadDataset(cfg.BordersPath, cfg.EPSG, logger)
	if err != nil {
		return nil, fmt.Errorf("load borders dataset: %w", err)
	}

	exclusion, err := LoadDataset(cfg.ExclusionPath, cfg.EPSG, logger)
	if err != nil {
		return nil, fmt.Errorf("load exclusion dataset: %w", err)
	}

	ix := &Index{
		cfg:       cfg,
		logger:    logger,
		borders:   borders,
		exclusion: exclusion,
	}

	if cfg.RegionalDir == "" {
		logger.Warn("no regional shapefile directory configured, regional attribution disabled")
		return ix, nil
	}

	regional, err := LoadRegional(cfg.RegionalDir, cfg.RegionalGlob, cfg.EPSG,
		cfg.RegionCodeField, cfg.RegionNameField, logger)
	if err != nil {
		logger.Warn("regional buffer datasets unavailable, regional attribution disabled",
			"error", err)
		return ix, nil
	}
	ix.regional = regional

	return ix, nil
}

// NewIndexForTesting assembles an index directly from in-memory datasets,
// bypassing the shapefile loading. Refresh is a no-op for such an index
// since none of the datasets has a backing file.
func NewIndexForTesting(borders, exclusion *Dataset, regional []*Dataset) *Index {
	return &Index{
		logger:    slog.Default(),
		borders:   borders,
		exclusion: exclusion,
		regional:  regional,
	}
}

// Refresh reloads any dataset whose backing file changed since it was
// loaded. Called once per pass, before filtering. Returns the number of
// datasets reloaded; failures are logged and the previous copies kept.
func (ix *Index) Refresh() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	reloaded := 0

	if changed(ix.borders) {
		if ds, err := LoadDataset(ix.cfg.BordersPath, ix.cfg.EPSG, ix.logger); err != nil {
			ix.logger.Error("reload of borders dataset failed, keeping previous copy", "error", err)
		} else {
			ix.borders = ds
			reloaded++
		}
	}

	if changed(ix.exclusion) {
		if ds, err := LoadDataset(ix.cfg.ExclusionPath, ix.cfg.EPSG, ix.logger); err != nil {
			ix.logger.Error("reload of exclusion dataset failed, keeping previous copy", "error", err)
		} else {
			ix.exclusion = ds
			reloaded++
		}
	}

	if regionalChanged(ix.regional) {
		regional, err := LoadRegional(ix.cfg.RegionalDir, ix.cfg.RegionalGlob, ix.cfg.EPSG,
			ix.cfg.RegionCodeField, ix.cfg.RegionNameField, ix.logger)
		if err != nil {
			ix.logger.Error("reload of regional datasets failed, keeping previous copies", "error", err)
		} else {
			ix.regional = regional
			reloaded++
		}
	}

	return reloaded
}

// Borders returns the national borders dataset.
func (ix *Index) Borders() *Dataset {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.borders
}

// Exclusion returns the exclusion-zone dataset.
func (ix *Index) Exclusion() *Dataset {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.exclusion
}

// Regional returns the regional buffer datasets, sorted by region code.
// Empty when regional attribution is disabled.
func (ix *Index) Regional() []*Dataset {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.regional
}

func changed(ds *Dataset) bool {
	info, err := os.Stat(ds.Path)
	if err != nil {
		return false
	}
	return info.ModTime().After(ds.ModTime)
}

func regionalChanged(datasets []*Dataset) bool {
	for _, ds := range datasets {
		if changed(ds) {
			return true
		}
	}
	return false
}

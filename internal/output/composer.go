package output

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/adybbroe/activefires-pp/internal/config"
	"github.com/adybbroe/activefires-pp/internal/convert"
	"github.com/adybbroe/activefires-pp/internal/domain"
)

// defaultTimeLayout renders pass times in file names when a pattern
// token gives no explicit layout.
const defaultTimeLayout = "20060102_150405"

// RegionBatch is the per-region slice of a pass's surviving detections,
// carrying the region metadata regional notifications need.
type RegionBatch struct {
	Code       string
	Name       string
	Detections []domain.AnnotatedDetection
}

// Composer renders the configured output targets for one processed
// pass: GeoJSON files written atomically under the output directory,
// plus the notifications announcing them.
type Composer struct {
	outDir  string
	targets []config.Target
	loc     *time.Location
	logger  *slog.Logger
}

// NewComposer builds a composer from the processing configuration.
func NewComposer(cfg *config.Processing, logger *slog.Logger) (*Composer, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Composer{
		outDir:  cfg.OutputDir,
		targets: cfg.Targets,
		loc:     loc,
		logger:  logger,
	}, nil
}

// Compose renders every configured target. A target whose conversion or
// write fails is skipped with a diagnostic; the remaining targets still
// go out. Skipped target names are returned alongside the notifications.
//
// When the pass has no surviving detections at all, every target gets an
// explicit no-fires notification so consumers can tell "no fires" from
// "no data".
func (c *Composer) Compose(pass domain.PassMessage, national []domain.AnnotatedDetection, regions []RegionBatch) ([]Notification, []string) {
	var notifications []Notification
	var skipped []string

	for _, t := range c.targets {
		switch {
		case len(national) == 0:
			notifications = append(notifications, c.noFires(pass, t))
		case t.Kind == config.TargetRegional:
			for _, region := range regions {
				if len(region.Detections) == 0 {
					continue
				}
				n, err := c.composeOne(pass, t, region.Detections, region)
				if err != nil {
					c.logger.Error("skipping regional output",
						"target", t.Name, "region", region.Code, "error", err)
					skipped = append(skipped, t.Name)
					continue
				}
				notifications = append(notifications, n)
			}
		default:
			n, err := c.composeOne(pass, t, national, RegionBatch{})
			if err != nil {
				c.logger.Error("skipping output", "target", t.Name, "error", err)
				skipped = append(skipped, t.Name)
				continue
			}
			notifications = append(notifications, n)
		}
	}
	return notifications, skipped
}

func (c *Composer) composeOne(pass domain.PassMessage, t config.Target, recs []domain.AnnotatedDetection, region RegionBatch) (Notification, error) {
	fc, err := c.featureCollection(t, pass, recs)
	if err != nil {
		return Notification{}, err
	}

	name, err := c.fileName(t, pass, region.Code)
	if err != nil {
		return Notification{}, err
	}

	path := filepath.Join(c.outDir, name)
	if err := writeAtomic(path, fc); err != nil {
		return Notification{}, err
	}
	c.logger.Info("wrote detections", "target", t.Name, "path", path, "count", len(recs))

	return Notification{
		MessageID:    newMessageID(),
		Kind:         KindFile,
		Product:      pass.Product,
		PlatformName: pass.PlatformName,
		StartTime:    pass.StartTime,
		EndTime:      pass.EndTime,
		OrbitNumber:  pass.OrbitNumber,
		Target:       t.Name,
		RegionCode:   region.Code,
		RegionName:   region.Name,
		Count:        len(recs),
		URI:          path,
		UID:          name,
	}, nil
}

// noFires builds the explicit no-detections notification for a target.
func (c *Composer) noFires(pass domain.PassMessage, t config.Target) Notification {
	return Notification{
		MessageID:    newMessageID(),
		Kind:         KindInfo,
		Product:      pass.Product,
		PlatformName: pass.PlatformName,
		StartTime:    pass.StartTime,
		EndTime:      pass.EndTime,
		OrbitNumber:  pass.OrbitNumber,
		Target:       t.Name,
		Info:         "No fire detections for this pass",
	}
}

func (c *Composer) featureCollection(t config.Target, pass domain.PassMessage, recs []domain.AnnotatedDetection) (*geojson.FeatureCollection, error) {
	reproject, err := convert.EPSG(t.EPSG)
	if err != nil {
		return nil, err
	}

	obsTime := pass.ObservationTime().UTC().Format(time.RFC3339)

	fc := geojson.NewFeatureCollection()
	for _, r := range recs {
		p, err := reproject.Transform(orb.Point{r.Longitude, r.Latitude})
		if err != nil {
			return nil, err
		}
		f := geojson.NewFeature(p)
		f.Properties["power"] = r.Power
		f.Properties["tb"] = r.TB
		if t.TBCelsius {
			f.Properties["tb_celsius"] = convert.KelvinToCelsius(r.TB)
		}
		f.Properties["confidence"] = r.Confidence
		f.Properties["observation_time"] = obsTime
		f.Properties["platform_name"] = pass.PlatformName
		f.Properties["id"] = r.ID
		fc.Append(f)
	}
	return fc, nil
}

// fileName expands a target's file pattern. Tokens: {platform},
// {product}, {region}, {start_time}, {end_time}; the time tokens take an
// optional Go layout after a colon, e.g. {start_time:20060102T1504}.
// Times render in the configured local timezone.
func (c *Composer) fileName(t config.Target, pass domain.PassMessage, regionCode string) (string, error) {
	out := t.FilePattern
	for {
		open := strings.Index(out, "{")
		if open < 0 {
			break
		}
		end := strings.Index(out[open:], "}")
		if end < 0 {
			return "", fmt.Errorf("unterminated token in file pattern %q", t.FilePattern)
		}
		token := out[open+1 : open+end]

		var value string
		switch {
		case token == "platform":
			value = sanitize(pass.PlatformName)
		case token == "product":
			value = sanitize(pass.Product)
		case token == "region":
			value = sanitize(regionCode)
		case token == "start_time":
			value = pass.StartTime.In(c.loc).Format(defaultTimeLayout)
		case token == "end_time":
			value = pass.EndTime.In(c.loc).Format(defaultTimeLayout)
		case strings.HasPrefix(token, "start_time:"):
			value = pass.StartTime.In(c.loc).Format(strings.TrimPrefix(token, "start_time:"))
		case strings.HasPrefix(token, "end_time:"):
			value = pass.EndTime.In(c.loc).Format(strings.TrimPrefix(token, "end_time:"))
		default:
			return "", fmt.Errorf("unknown token %q in file pattern %q", token, t.FilePattern)
		}
		out = out[:open] + value + out[open+end+1:]
	}
	return out, nil
}

// sanitize keeps file names flat and shell-safe.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, string(os.PathSeparator), "-")
	return strings.ReplaceAll(s, " ", "-")
}

// writeAtomic marshals the collection into a temp file in the target
// directory and renames it into place, so readers never see a partial
// file.
func writeAtomic(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode feature collection: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*.geojson")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write feature collection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move feature collection into place: %w", err)
	}
	return nil
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/adybbroe/activefires-pp/internal/config"
	"github.com/adybbroe/activefires-pp/internal/domain"
	"github.com/adybbroe/activefires-pp/internal/filtering"
	"github.com/adybbroe/activefires-pp/internal/geometry"
	"github.com/adybbroe/activefires-pp/internal/identity"
	"github.com/adybbroe/activefires-pp/internal/observability"
	"github.com/adybbroe/activefires-pp/internal/output"
)

// PassProcessor implements Processor: it takes one raw pass message
// through decode, quality and geographic filtering, identity
// assignment, regional attribution, and output composition.
type PassProcessor struct {
	cfg      *config.Processing
	index    *geometry.Index
	store    identity.Store
	composer *output.Composer
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewPassProcessor wires the processing stages together.
func NewPassProcessor(cfg *config.Processing, index *geometry.Index, store identity.Store, composer *output.Composer, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *PassProcessor {
	return &PassProcessor{
		cfg:      cfg,
		index:    index,
		store:    store,
		composer: composer,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Process handles one pass end to end and returns its notifications.
// A product outside the allow-list returns ErrPassSkipped; a payload
// that cannot be decoded returns an error the pipeline treats as a
// dropped pass. Identity store failures return ErrStoreUnavailable so
// the pipeline retries the pass rather than losing its detections.
func (p *PassProcessor) Process(ctx context.Context, raw domain.RawEvent) ([]output.Notification, error) {
	pass, err := domain.ParsePassMessage(raw)
	if err != nil {
		return nil, err
	}

	if !p.cfg.ProductAllowed(pass.Product) {
		p.metrics.PassesDropped.WithLabelValues("product").Inc()
		return nil, fmt.Errorf("%w: product %q not in allow-list", ErrPassSkipped, pass.Product)
	}

	p.metrics.DetectionsIn.Add(float64(len(pass.Detections)))
	p.metrics.PassSize.Observe(float64(len(pass.Detections)))

	if n := p.index.Refresh(); n > 0 {
		p.metrics.DatasetReloads.Add(float64(n))
	}

	survivors := p.filter(pass)

	annotated, err := p.assignIdentities(ctx, survivors, pass)
	if err != nil {
		return nil, err
	}

	if pruned, err := p.store.Prune(ctx, p.clock.Now()); err != nil {
		p.logger.Warn("pruning expired identities failed", "error", err)
	} else if pruned > 0 {
		p.metrics.IdentitiesPruned.Add(float64(pruned))
		p.logger.Info("pruned expired identities", "count", pruned)
	}

	p.metrics.DetectionsOut.Add(float64(len(annotated)))

	notifications, skipped := p.composer.Compose(pass, annotated, p.regionBatches(annotated))
	for _, target := range skipped {
		p.metrics.TargetsSkipped.WithLabelValues(target).Inc()
	}
	for _, n := range notifications {
		if n.Kind == output.KindFile {
			p.metrics.OutputsWritten.WithLabelValues(n.Target).Inc()
		}
	}

	if len(annotated) == 0 {
		p.logger.Info("no fire detections left after filtering",
			"product", pass.Product,
			"platform", pass.PlatformName,
			"start_time", pass.StartTime)
	}

	return notifications, nil
}

// filter drops implausible records, spurious detections, and detections
// outside the area of interest.
func (p *PassProcessor) filter(pass domain.PassMessage) []domain.Detection {
	valid := pass.Detections[:0:0]
	for _, d := range pass.Detections {
		if err := d.Validate(); err != nil {
			p.logger.Warn("skipping implausible detection record", "error", err)
			p.metrics.Rejections.WithLabelValues("invalid").Inc()
			continue
		}
		valid = append(valid, d)
	}

	thresholds := domain.Thresholds{
		MinFRP: p.cfg.Quality.MinFRPMegawatts,
		MaxTB:  p.cfg.Quality.MaxTBKelvin,
	}
	kept, spurious := domain.FilterQuality(valid, thresholds)
	if spurious > 0 {
		p.metrics.Rejections.WithLabelValues("quality").Add(float64(spurious))
	}

	geo := filtering.NewGeoFilter(p.index.Borders(), p.index.Exclusion())
	inside, rejected := geo.Filter(kept)
	for reason, n := range rejected {
		p.metrics.Rejections.WithLabelValues(string(reason)).Add(float64(n))
	}
	return inside
}

func (p *PassProcessor) assignIdentities(ctx context.Context, detections []domain.Detection, pass domain.PassMessage) ([]domain.AnnotatedDetection, error) {
	obsTime := pass.ObservationTime()
	annotated := make([]domain.AnnotatedDetection, 0, len(detections))
	for _, d := range detections {
		id, err := p.store.Assign(ctx, d.Latitude, d.Longitude, obsTime)
		if err != nil {
			return nil, fmt.Errorf("%w: assign detection identity: %v", ErrStoreUnavailable, err)
		}
		if id.New {
			p.metrics.IdentitiesIssued.Inc()
		} else {
			p.metrics.IdentitiesReused.Inc()
		}
		annotated = append(annotated, domain.AnnotatedDetection{Detection: d, ID: id.ID})
	}
	return annotated, nil
}

// regionBatches groups the surviving detections by regional buffer zone,
// in dataset load order.
func (p *PassProcessor) regionBatches(annotated []domain.AnnotatedDetection) []output.RegionBatch {
	attributor := filtering.NewAttributor(p.index.Regional())
	if !attributor.Enabled() {
		return nil
	}

	byRegion := attributor.Group(annotated)
	batches := make([]output.RegionBatch, 0, len(byRegion))
	for _, region := range attributor.Regions() {
		detections, ok := byRegion[region.Code]
		if !ok {
			continue
		}
		batches = append(batches, output.RegionBatch{
			Code:       region.Code,
			Name:       region.Name,
			Detections: detections,
		})
	}
	return batches
}

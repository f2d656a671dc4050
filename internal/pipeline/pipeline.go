// Package pipeline drives the consume-process-publish loop: satellite
// pass messages in from Kafka, filtered and identified fire detections
// out as GeoJSON files plus notification messages.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/adybbroe/activefires-pp/internal/domain"
	"github.com/adybbroe/activefires-pp/internal/observability"
	"github.com/adybbroe/activefires-pp/internal/output"
)

// PassExtractor reads up to batchSize raw pass messages from the source.
type PassExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Processor turns one raw pass message into the pass's notifications,
// writing any output files as a side effect.
type Processor interface {
	Process(ctx context.Context, raw domain.RawEvent) ([]output.Notification, error)
}

// NotificationPublisher writes one pass's notifications to the sink.
type NotificationPublisher interface {
	Publish(ctx context.Context, notifications []output.Notification) error
}

// ErrPassSkipped marks a pass the processor deliberately dropped, e.g.
// a product outside the allow-list. The pipeline commits it without
// treating it as a failure.
var ErrPassSkipped = errors.New("pass skipped")

// ErrStoreUnavailable marks a pass that failed on the identity store
// rather than on its own content. The pipeline retries it without
// committing: a duplicate notification beats a lost detection.
var ErrStoreUnavailable = errors.New("identity store unavailable")

// Pipeline orchestrates the consume-process-publish loop.
type Pipeline struct {
	extractor PassExtractor
	processor Processor
	publisher NotificationPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a Pipeline with the given stages and observability.
func New(e PassExtractor, proc Processor, pub NotificationPublisher, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		processor: proc,
		publisher: pub,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil if the pipeline has processed at least one
// pass, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any passes yet")
	}
	return nil
}

// Run executes the processing loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	// Keeps retry storms short while avoiding tight loops during Kafka outages.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-process-publish cycle. Returns false if
// the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}
	*backoff = 200 * time.Millisecond

	for _, raw := range rawBatch {
		if !p.processPass(ctx, raw, backoff, maxBackoff) {
			return false
		}
	}
	return true
}

// processPass takes one pass message through processing and publishing.
// The offset is committed only after the pass's notifications are out,
// so a crash between the two replays the pass rather than losing it.
// Returns false if the pipeline should stop.
func (p *Pipeline) processPass(ctx context.Context, raw domain.RawEvent, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	notifications, err := p.processor.Process(ctx, raw)
	for errors.Is(err, ErrStoreUnavailable) {
		p.logger.Error("identity store unavailable, retrying pass",
			"error", err, "topic", raw.Topic, "offset", raw.Offset)
		if !p.backoffOrStop(ctx, backoff, maxBackoff) {
			return false
		}
		notifications, err = p.processor.Process(ctx, raw)
	}

	switch {
	case errors.Is(err, ErrPassSkipped):
		p.logger.Debug("pass skipped", "topic", raw.Topic, "offset", raw.Offset, "reason", err)
		p.commitOffset(ctx, raw)
		return true
	case err != nil:
		if ctx.Err() != nil {
			return false
		}
		p.logger.Warn("processing failed, skipping pass",
			"error", err,
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		p.metrics.PassesDropped.WithLabelValues("malformed").Inc()
		p.commitOffset(ctx, raw)
		return true
	}

	for {
		err := p.publisher.Publish(ctx, notifications)
		if err == nil {
			break
		}
		p.logger.Error("publish notifications failed", "error", err, "count", len(notifications))
		if !p.backoffOrStop(ctx, backoff, maxBackoff) {
			return false
		}
	}

	for _, n := range notifications {
		p.metrics.NotificationsSent.WithLabelValues(n.Kind).Inc()
	}
	p.metrics.PassesProcessed.Inc()
	p.metrics.PassProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)

	p.commitOffset(ctx, raw)
	return true
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

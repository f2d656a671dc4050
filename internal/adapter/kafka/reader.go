package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/adybbroe/activefires-pp/internal/config"
	"github.com/adybbroe/activefires-pp/internal/domain"
)

// fetchWait bounds how long one ExtractBatch call blocks waiting for the
// first message of a batch.
const fetchWait = 2 * time.Second

// Reader consumes pass messages from the source Kafka topic as part of
// a consumer group. It implements pipeline.PassExtractor.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a Kafka consumer for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaSourceTopic,
		GroupID:     cfg.KafkaGroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	return &Reader{reader: r, logger: logger}
}

// ExtractBatch fetches up to batchSize pass messages. It blocks for at
// most fetchWait; an empty topic yields an empty batch, not an error.
// Offsets are not committed here: each raw event carries a Commit
// closure the pipeline calls once that pass's notifications are out.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	batch := make([]domain.RawEvent, 0, batchSize)

	fetchCtx, cancel := context.WithTimeout(ctx, fetchWait)
	defer cancel()

	for len(batch) < batchSize {
		msg, err := r.reader.FetchMessage(fetchCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			if ctx.Err() != nil {
				return batch, ctx.Err()
			}
			return batch, err
		}
		batch = append(batch, r.mapMessage(msg))
	}
	return batch, nil
}

func (r *Reader) mapMessage(msg kafkago.Message) domain.RawEvent {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawEvent{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Commit: func(ctx context.Context) error {
			return r.reader.CommitMessages(ctx, msg)
		},
	}
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

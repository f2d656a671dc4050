package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/adybbroe/activefires-pp/internal/config"
	"github.com/adybbroe/activefires-pp/internal/output"
)

// Writer produces notifications to a Kafka topic.
// It implements pipeline.NotificationPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and publishes the notifications for one pass in a
// single WriteMessages call, so either the whole pass is announced or
// none of it is and the offset stays uncommitted.
func (w *Writer) Publish(ctx context.Context, notifications []output.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(notifications))
	for i := range notifications {
		msg, err := serializeToMessage(notifications[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a notification into a Kafka message. The
// target name keys the message so one target's notifications stay
// ordered within a partition.
func serializeToMessage(n output.Notification) (kafkago.Message, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(n.Target),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(n.Kind)},
			{Key: "platform_name", Value: []byte(n.PlatformName)},
			{Key: "start_time", Value: []byte(n.StartTime.Format(time.RFC3339))},
		},
	}, nil
}

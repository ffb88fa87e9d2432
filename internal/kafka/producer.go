package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"alert-service/internal/models"
)

// writerInterface allows mocking kafka.Writer.
type writerInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer publishes JSON messages to a single topic.
type Producer struct {
	writer writerInterface
	topic  string
}

// NewProducer creates a producer for topic.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafkago.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

// Notify publishes each dispatched alert, keyed by device version.
func (p *Producer) Notify(ctx context.Context, alerts []models.Alert) error {
	msgs := make([]kafkago.Message, 0, len(alerts))
	for _, a := range alerts {
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
		msgs = append(msgs, kafkago.Message{Key: []byte(strconv.Itoa(a.Version)), Value: payload})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d alerts to %s: %w", len(msgs), p.topic, err)
	}
	return nil
}

// PublishMeasurement publishes a device reading.
func (p *Producer) PublishMeasurement(ctx context.Context, msg models.MeasurementMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal measurement: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafkago.Message{Key: []byte(strconv.Itoa(msg.Version)), Value: payload})
	if err != nil {
		return fmt.Errorf("failed to publish measurement to %s: %w", p.topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"alert-service/internal/logging"
	"alert-service/internal/models"
)

// readerInterface allows mocking kafka.Reader.
type readerInterface interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// MeasurementWriter persists measurements into the time-series store.
type MeasurementWriter interface {
	WriteMeasurement(ctx context.Context, m models.Measurement) error
}

// Consumer bridges device measurements from the bus into the time-series store.
type Consumer struct {
	reader     readerInterface
	sink       MeasurementWriter
	loc        *time.Location
	logger     *logging.Logger
	now        func() time.Time
	retryDelay time.Duration // pause after a failed read
}

// NewConsumer creates a consumer-group reader on topic. Message times carry no
// offset and are interpreted in loc.
func NewConsumer(brokers []string, topic, groupID string, sink MeasurementWriter, loc *time.Location, logger *logging.Logger) *Consumer {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, sink: sink, loc: loc, logger: logger, now: time.Now, retryDelay: 2 * time.Second}
}

// Start reads until ctx is cancelled or the reader is closed. Other read
// errors are logged and retried.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Info("Kafka measurement consumer started")
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					c.logger.Info("Kafka measurement consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed, retrying in %s: %v", c.retryDelay, err)
				select {
				case <-ctx.Done():
					c.logger.Info("Kafka measurement consumer stopped")
					return
				case <-time.After(c.retryDelay):
				}
				continue
			}
			if err := c.handle(ctx, msg); err != nil {
				c.logger.Errorf("Skipping message at offset %d: %v", msg.Offset, err)
			}
		}
	}()
}

func (c *Consumer) handle(ctx context.Context, msg kafkago.Message) error {
	m, err := c.decode(msg.Value)
	if err != nil {
		return err
	}
	if err := c.sink.WriteMeasurement(ctx, m); err != nil {
		return err
	}
	c.logger.Debugf("Stored measurement version=%d value=%.2f", m.Version, m.Value)
	return nil
}

func (c *Consumer) decode(payload []byte) (models.Measurement, error) {
	var msg models.MeasurementMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.Measurement{}, fmt.Errorf("unmarshal message failed: %w", err)
	}
	if msg.Version < 1 {
		return models.Measurement{}, fmt.Errorf("invalid message: missing version")
	}

	at := c.now()
	if msg.Time != "" {
		parsed, err := time.ParseInLocation(models.DatetimeLayout, msg.Time, c.loc)
		if err != nil {
			return models.Measurement{}, fmt.Errorf("invalid message time %q: %w", msg.Time, err)
		}
		at = parsed
	}
	return models.Measurement{Version: msg.Version, Value: msg.Value, Timestamp: at.UTC()}, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

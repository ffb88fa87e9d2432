package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"alert-service/internal/logging"
	"alert-service/internal/models"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockReader struct {
	mock.Mock
}

func (m *MockReader) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	args := m.Called(ctx)
	return args.Get(0).(kafkago.Message), args.Error(1)
}

func (m *MockReader) Close() error {
	args := m.Called()
	return args.Error(0)
}

type sinkFunc func(ctx context.Context, m models.Measurement) error

func (f sinkFunc) WriteMeasurement(ctx context.Context, m models.Measurement) error { return f(ctx, m) }

func TestProducer_Notify(t *testing.T) {
	w := new(MockWriter)
	p := &Producer{writer: w, topic: "alerts"}
	ctx := context.Background()
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	w.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafkago.Message) bool {
		if len(msgs) != 2 || string(msgs[0].Key) != "1" {
			return false
		}
		var body map[string]any
		if err := json.Unmarshal(msgs[0].Value, &body); err != nil {
			return false
		}
		return body["type"] == "ALTA" && body["sended"] == true && body["datetime"] == "2024-03-10 12:00:00"
	})).Return(nil)

	err := p.Notify(ctx, []models.Alert{
		{Datetime: at, Value: 950, Version: 1, Type: models.AlertHigh, Sended: true},
		{Datetime: at.Add(time.Minute), Value: 990, Version: 1, Type: models.AlertHigh, Sended: true},
	})
	require.NoError(t, err)
	w.AssertExpectations(t)
}

func TestProducer_NotifyError(t *testing.T) {
	w := new(MockWriter)
	p := &Producer{writer: w, topic: "alerts"}
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(assert.AnError)

	err := p.Notify(context.Background(), []models.Alert{{Version: 2, Type: models.AlertLow}})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestProducer_PublishMeasurement(t *testing.T) {
	w := new(MockWriter)
	p := &Producer{writer: w, topic: "measurements"}
	ctx := context.Background()
	msg := models.MeasurementMessage{Time: "2024-03-10 12:00:00", Value: 512.3, Version: 2}
	payload, _ := json.Marshal(msg)

	w.On("WriteMessages", ctx, []kafkago.Message{{Key: []byte("2"), Value: payload}}).Return(nil)
	w.On("Close").Return(nil)

	require.NoError(t, p.PublishMeasurement(ctx, msg))
	require.NoError(t, p.Close())
	w.AssertExpectations(t)
}

func TestConsumer_Decode(t *testing.T) {
	loc := time.FixedZone("CLT", -3*3600)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Consumer{loc: loc, logger: logging.Discard(), now: func() time.Time { return now }}

	m, err := c.decode([]byte(`{"time":"2024-03-10 09:00:00","value":812.5,"version":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Version)
	assert.Equal(t, 812.5, m.Value)
	assert.Equal(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), m.Timestamp)

	m, err = c.decode([]byte(`{"value":10,"version":2}`))
	require.NoError(t, err)
	assert.Equal(t, now, m.Timestamp)

	for _, bad := range []string{`not json`, `{"value":10}`, `{"time":"yesterday","value":1,"version":1}`} {
		_, err := c.decode([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestConsumer_StartWritesUntilCancelled(t *testing.T) {
	r := new(MockReader)
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var stored []models.Measurement
	sink := sinkFunc(func(_ context.Context, m models.Measurement) error {
		mu.Lock()
		defer mu.Unlock()
		stored = append(stored, m)
		return nil
	})

	r.On("ReadMessage", mock.Anything).Return(kafkago.Message{Value: []byte(`{"time":"2024-03-10 12:00:00","value":450,"version":1}`)}, nil).Once()
	r.On("ReadMessage", mock.Anything).Return(kafkago.Message{Value: []byte(`garbage`)}, nil).Once()
	r.On("ReadMessage", mock.Anything).Return(kafkago.Message{}, io.EOF).Run(func(mock.Arguments) { cancel() })
	r.On("Close").Return(nil)

	c := &Consumer{reader: r, sink: sink, loc: time.UTC, logger: logging.Discard(), now: time.Now}
	var wg sync.WaitGroup
	c.Start(ctx, &wg)
	wg.Wait()
	require.NoError(t, c.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stored, 1)
	assert.Equal(t, 450.0, stored[0].Value)
}

func TestConsumer_StartKeepsReadingAfterTransientError(t *testing.T) {
	r := new(MockReader)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var stored []models.Measurement
	sink := sinkFunc(func(_ context.Context, m models.Measurement) error {
		mu.Lock()
		defer mu.Unlock()
		stored = append(stored, m)
		return nil
	})

	r.On("ReadMessage", mock.Anything).Return(kafkago.Message{}, errors.New("broker not available")).Once()
	r.On("ReadMessage", mock.Anything).Return(kafkago.Message{}, errors.New("leader election")).Once()
	r.On("ReadMessage", mock.Anything).Return(kafkago.Message{Value: []byte(`{"time":"2024-03-10 12:00:00","value":810,"version":2}`)}, nil).Once()
	r.On("ReadMessage", mock.Anything).Return(kafkago.Message{}, io.EOF)

	c := &Consumer{reader: r, sink: sink, loc: time.UTC, logger: logging.Discard(), now: time.Now, retryDelay: time.Millisecond}
	var wg sync.WaitGroup
	c.Start(ctx, &wg)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stored, 1)
	assert.Equal(t, 810.0, stored[0].Value)
	assert.Equal(t, 2, stored[0].Version)
	r.AssertNumberOfCalls(t, "ReadMessage", 4)
}

func TestConsumer_StartStopsDuringBackoff(t *testing.T) {
	r := new(MockReader)
	ctx, cancel := context.WithCancel(context.Background())

	r.On("ReadMessage", mock.Anything).Return(kafkago.Message{}, errors.New("broker not available")).Run(func(mock.Arguments) { cancel() }).Once()

	c := &Consumer{reader: r, sink: sinkFunc(func(context.Context, models.Measurement) error { return nil }), loc: time.UTC, logger: logging.Discard(), now: time.Now, retryDelay: time.Hour}
	var wg sync.WaitGroup
	c.Start(ctx, &wg)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop while backing off")
	}
	r.AssertNumberOfCalls(t, "ReadMessage", 1)
}

func TestConsumer_HandleSinkError(t *testing.T) {
	c := &Consumer{
		sink:   sinkFunc(func(context.Context, models.Measurement) error { return errors.New("influx down") }),
		loc:    time.UTC,
		logger: logging.Discard(),
		now:    time.Now,
	}
	err := c.handle(context.Background(), kafkago.Message{Value: []byte(`{"value":1,"version":1}`)})
	assert.EqualError(t, err, "influx down")
}

package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-service/internal/logging"
	"alert-service/internal/models"
)

type notifierFunc func(ctx context.Context, alerts []models.Alert) error

func (f notifierFunc) Notify(ctx context.Context, alerts []models.Alert) error { return f(ctx, alerts) }

var at = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestMulti_CallsAllAndJoinsErrors(t *testing.T) {
	var calls int
	first := errors.New("kafka down")
	second := errors.New("telegram down")
	m := Multi{
		notifierFunc(func(context.Context, []models.Alert) error { calls++; return first }),
		notifierFunc(func(context.Context, []models.Alert) error { calls++; return nil }),
		notifierFunc(func(context.Context, []models.Alert) error { calls++; return second }),
	}

	err := m.Notify(context.Background(), []models.Alert{{Version: 1}})
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)

	assert.NoError(t, Multi{}.Notify(context.Background(), nil))
}

func TestTelegram_NotifyFormatsAndRetries(t *testing.T) {
	tg := NewTelegram("token", 42, logging.Discard())
	var texts []string
	tg.send = func(_ context.Context, text string) error {
		texts = append(texts, text)
		if len(texts) == 1 {
			return errors.New("429 too many requests")
		}
		return nil
	}

	err := tg.Notify(context.Background(), []models.Alert{
		{Datetime: at, Value: 950.5, Version: 1, Type: models.AlertHigh, Sended: true},
	})
	require.NoError(t, err)
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "1 alertas ALTA")
	assert.Contains(t, texts[0], "2024-03-10 12:00:00  950.50")
}

func TestTelegram_NotifyEmptyIsNoop(t *testing.T) {
	tg := NewTelegram("token", 42, logging.Discard())
	tg.send = func(context.Context, string) error { t.Fatal("must not send"); return nil }
	assert.NoError(t, tg.Notify(context.Background(), nil))
}

func TestFormatDispatch_Truncates(t *testing.T) {
	alerts := make([]models.Alert, maxListedAlerts+5)
	for i := range alerts {
		alerts[i] = models.Alert{Datetime: at.Add(time.Duration(i) * time.Minute), Value: 900, Version: 1, Type: models.AlertHigh}
	}
	text := formatDispatch(alerts)
	assert.Equal(t, maxListedAlerts, strings.Count(text, "900.00"))
	assert.Contains(t, text, "y 5 más")
}

func TestHub_BroadcastsDispatch(t *testing.T) {
	hub := NewHub(logging.Discard())
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Add(conn)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	err = hub.Notify(context.Background(), []models.Alert{{Datetime: at, Value: 100, Version: 2, Type: models.AlertHigh, Sended: true}})
	require.NoError(t, err)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type    string           `json:"type"`
		Payload []map[string]any `json:"payload"`
	}
	require.NoError(t, client.ReadJSON(&msg))
	assert.Equal(t, "dispatch", msg.Type)
	require.Len(t, msg.Payload, 1)
	assert.Equal(t, "ALTA", msg.Payload[0]["type"])
	assert.Equal(t, float64(2), msg.Payload[0]["version"])
}

func TestHub_SlowClientDoesNotBlockNotify(t *testing.T) {
	hub := NewHub(logging.Discard())
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Add(conn)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	batch := make([]models.Alert, 10000)
	for i := range batch {
		batch[i] = models.Alert{Datetime: at.Add(time.Duration(i) * time.Second), Value: 950, Version: 1, Type: models.AlertHigh, Sended: true}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 60; i++ {
			_ = hub.Notify(context.Background(), batch)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Notify blocked on a client that does not read")
	}
	assert.Equal(t, 0, hub.Count())
}

func TestHub_NotifyHonorsCancelledContext(t *testing.T) {
	hub := NewHub(logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := hub.Notify(ctx, []models.Alert{{Datetime: at, Value: 1, Version: 1}})
	assert.ErrorIs(t, err, context.Canceled)
}

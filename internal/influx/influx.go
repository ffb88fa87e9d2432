package influx

import (
	"context"
	"fmt"
	"iter"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"

	"alert-service/internal/models"
)

// Config selects the bucket and series measurements live in.
type Config struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// Client reads and writes device measurements.
type Client struct {
	client influxdb2.Client
	query  api.QueryAPI
	write  api.WriteAPIBlocking
	cfg    Config
}

// New creates an InfluxDB client. No connection is made until first use.
func New(cfg Config) *Client {
	c := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(30))
	return &Client{
		client: c,
		query:  c.QueryAPI(cfg.Org),
		write:  c.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		cfg:    cfg,
	}
}

// Ping checks the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ok, err := c.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping influxdb: %w", err)
	}
	if !ok {
		return fmt.Errorf("influxdb at %s is not ready", c.cfg.URL)
	}
	return nil
}

func (c *Client) Close() {
	c.client.Close()
}

// Measurements returns the readings of a device version inside [now-window, now].
// The sequence streams from the server and can be ranged over once.
func (c *Client) Measurements(ctx context.Context, version int, window models.Window) (iter.Seq2[models.Measurement, error], error) {
	result, err := c.query.Query(ctx, buildQuery(c.cfg.Bucket, c.cfg.Measurement, version, window))
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	return func(yield func(models.Measurement, error) bool) {
		defer result.Close()
		for result.Next() {
			m, err := toMeasurement(result.Record())
			if !yield(m, err) || err != nil {
				return
			}
		}
		if err := result.Err(); err != nil {
			yield(models.Measurement{}, fmt.Errorf("failed to read measurements: %w", err))
		}
	}, nil
}

// WriteMeasurement stores one reading as a point tagged with its version.
func (c *Client) WriteMeasurement(ctx context.Context, m models.Measurement) error {
	p := influxdb2.NewPoint(c.cfg.Measurement,
		map[string]string{"version": strconv.Itoa(m.Version)},
		map[string]interface{}{"value": m.Value},
		m.Timestamp)
	if err := c.write.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("failed to write measurement: %w", err)
	}
	return nil
}

// buildQuery renders the Flux range query. Every interpolated value is either a
// validated window, an int, or quoted with strconv.Quote.
func buildQuery(bucket, measurement string, version int, window models.Window) string {
	return fmt.Sprintf(`from(bucket: %s)
  |> range(start: -%s, stop: now())
  |> filter(fn: (r) => r["_measurement"] == %s)
  |> filter(fn: (r) => r["_field"] == "value")
  |> filter(fn: (r) => r["version"] == %s)`,
		strconv.Quote(bucket),
		window.String(),
		strconv.Quote(measurement),
		strconv.Quote(strconv.Itoa(version)),
	)
}

func toMeasurement(rec *query.FluxRecord) (models.Measurement, error) {
	tag, ok := rec.ValueByKey("version").(string)
	if !ok {
		return models.Measurement{}, fmt.Errorf("record in table %d has no version tag", rec.Table())
	}
	version, err := strconv.Atoi(tag)
	if err != nil {
		return models.Measurement{}, fmt.Errorf("invalid version tag %q: %w", tag, err)
	}

	var value float64
	switch v := rec.Value().(type) {
	case float64:
		value = v
	case int64:
		value = float64(v)
	case uint64:
		value = float64(v)
	default:
		return models.Measurement{}, fmt.Errorf("unexpected value type %T", v)
	}

	return models.Measurement{Version: version, Value: value, Timestamp: rec.Time().UTC()}, nil
}

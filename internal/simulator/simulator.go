// Package simulator emits synthetic device readings onto the measurement topic.
package simulator

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"alert-service/internal/logging"
	"alert-service/internal/models"
)

// Versions are the device versions the simulator reports for.
var Versions = []int{1, 2}

type Publisher interface {
	PublishMeasurement(ctx context.Context, msg models.MeasurementMessage) error
}

type Simulator struct {
	publisher Publisher
	minValue  float64
	maxValue  float64
	loc       *time.Location
	logger    *logging.Logger
	rnd       *rand.Rand
	now       func() time.Time
}

func New(publisher Publisher, min, max float64, loc *time.Location, logger *logging.Logger) *Simulator {
	return &Simulator{
		publisher: publisher,
		minValue:  min,
		maxValue:  max,
		loc:       loc,
		logger:    logger,
		rnd:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		now:       time.Now,
	}
}

// Reading builds one random reading stamped with the current local time.
func (s *Simulator) Reading() models.MeasurementMessage {
	value := s.minValue + s.rnd.Float64()*(s.maxValue-s.minValue)
	return models.MeasurementMessage{
		Time:    s.now().In(s.loc).Format(models.DatetimeLayout),
		Value:   math.Round(value*100) / 100,
		Version: Versions[s.rnd.IntN(len(Versions))],
	}
}

// Tick publishes a single reading.
func (s *Simulator) Tick(ctx context.Context) error {
	msg := s.Reading()
	if err := s.publisher.PublishMeasurement(ctx, msg); err != nil {
		s.logger.Errorf("Failed to publish measurement: %v", err)
		return err
	}
	s.logger.Debugf("Published measurement version=%d value=%.2f time=%s", msg.Version, msg.Value, msg.Time)
	return nil
}

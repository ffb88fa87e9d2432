package alerting

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"alert-service/internal/jobs"
	"alert-service/internal/logging"
	"alert-service/internal/models"
)

const notifyTimeout = 30 * time.Second

// MeasurementSource reads device measurements for a version inside [now-window, now].
// The returned sequence is single-pass.
type MeasurementSource interface {
	Measurements(ctx context.Context, version int, window models.Window) (iter.Seq2[models.Measurement, error], error)
}

// AlertStore persists classified alerts.
type AlertStore interface {
	UpsertAlert(ctx context.Context, alert models.Alert) error
	SearchAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error)
	DispatchAlerts(ctx context.Context, version int, typ models.AlertType) ([]models.Alert, error)
}

// JobScheduler defers pipeline runs.
type JobScheduler interface {
	Schedule(job jobs.Job, run func(context.Context) error) error
	Status(id string) jobs.State
}

// Notifier receives alerts right after they were marked as sent.
type Notifier interface {
	Notify(ctx context.Context, alerts []models.Alert) error
}

// Options tune pipeline behavior.
type Options struct {
	MaxLookbackDays  int
	JobDelay         time.Duration
	SkipUnclassified bool
}

// Pipeline turns measurements into persisted alerts, inline or as a deferred job.
type Pipeline struct {
	source    MeasurementSource
	store     AlertStore
	scheduler JobScheduler
	notifier  Notifier
	validator WindowValidator
	opts      Options
	logger    *logging.Logger
	now       func() time.Time
}

// NewPipeline wires the pipeline. notifier may be nil.
func NewPipeline(source MeasurementSource, store AlertStore, scheduler JobScheduler, notifier Notifier, opts Options, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		source:    source,
		store:     store,
		scheduler: scheduler,
		notifier:  notifier,
		validator: NewWindowValidator(opts.MaxLookbackDays),
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Process validates the request against the synchronous ceiling and runs the
// whole pipeline inline. It returns the number of stored alerts.
func (p *Pipeline) Process(ctx context.Context, version int, timeSearch string) (int, error) {
	if !SupportedVersion(version) {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrInvalidParameters, version)
	}
	window, err := p.validator.Bounded(timeSearch)
	if err != nil {
		return 0, err
	}
	return p.run(ctx, version, window)
}

// Submit validates the request and schedules the pipeline to run after the
// configured delay. It returns the job id.
func (p *Pipeline) Submit(_ context.Context, version int, timeSearch string) (string, error) {
	if !SupportedVersion(version) {
		return "", fmt.Errorf("%w: unsupported version %d", ErrInvalidParameters, version)
	}
	window, err := p.validator.Unbounded(timeSearch)
	if err != nil {
		return "", err
	}

	job := jobs.Job{
		ID:      uuid.NewString(),
		RunAt:   p.now().Add(p.opts.JobDelay),
		Version: version,
		Window:  window.String(),
	}
	err = p.scheduler.Schedule(job, func(ctx context.Context) error {
		_, err := p.run(ctx, version, window)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("schedule job: %w", err)
	}
	return job.ID, nil
}

// JobStatus reports the state of a job returned by Submit.
func (p *Pipeline) JobStatus(id string) jobs.State {
	return p.scheduler.Status(id)
}

// Search returns alerts for a version, optionally narrowed by type and sent flag.
func (p *Pipeline) Search(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	if !SupportedVersion(filter.Version) {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidParameters, filter.Version)
	}
	alerts, err := p.store.SearchAlerts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return alerts, nil
}

// Dispatch marks every unsent alert of version and type as sent and hands the
// flipped rows to the notifier. It returns how many rows changed.
func (p *Pipeline) Dispatch(ctx context.Context, version int, typ models.AlertType) (int, error) {
	if !SupportedVersion(version) {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrInvalidParameters, version)
	}
	if _, err := models.ParseAlertType(string(typ)); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}

	sent, err := p.store.DispatchAlerts(ctx, version, typ)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	p.logger.Infof("Dispatched %d alerts (version=%d type=%s)", len(sent), version, typ)

	if p.notifier != nil && len(sent) > 0 {
		// Rows are already marked; a failed notification does not undo that.
		// The fan-out outlives the request but not notifyTimeout.
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := p.notifier.Notify(nctx, sent); err != nil {
			p.logger.Errorf("Dispatch notification failed: %v", err)
		}
	}
	return len(sent), nil
}

// run queries, classifies and stores. The first failing write aborts the batch.
func (p *Pipeline) run(ctx context.Context, version int, window models.Window) (int, error) {
	measurements, err := p.source.Measurements(ctx, version, window)
	if err != nil {
		return 0, fmt.Errorf("%w: query measurements: %w", ErrUpstreamUnavailable, err)
	}

	stored := 0
	for m, err := range measurements {
		if err != nil {
			return stored, fmt.Errorf("%w: read measurements: %w", ErrUpstreamUnavailable, err)
		}
		alert := models.Alert{
			Datetime: m.Timestamp,
			Value:    m.Value,
			Version:  m.Version,
			Type:     Classify(m.Version, m.Value),
		}
		if !alert.Classified() && p.opts.SkipUnclassified {
			continue
		}
		if err := p.store.UpsertAlert(ctx, alert); err != nil {
			if errors.Is(err, context.Canceled) {
				return stored, err
			}
			return stored, fmt.Errorf("%w: store alert: %w", ErrUpstreamUnavailable, err)
		}
		stored++
	}

	p.logger.Infof("Processed %d alerts for version %d over %s", stored, version, window)
	return stored, nil
}

package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"alert-service/internal/logging"
)

// Status is the lifecycle state of a deferred job as seen by clients.
type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
	StatusUnknown  Status = "unknown"
)

// Job describes a deferred pipeline run.
type Job struct {
	ID      string
	RunAt   time.Time
	Version int
	Window  string
}

// State is what Status reports for a job id. Error is set when an executed run failed.
type State struct {
	Status Status
	Error  string
}

// Registry schedules one-shot jobs on a background scheduler and tracks their state
// for the lifetime of the process.
type Registry struct {
	mu        sync.Mutex
	pending   map[string]Job
	executed  map[string]State
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *logging.Logger
}

// New constructs a Registry. Call Start before jobs can fire.
func New(logger *logging.Logger) (*Registry, error) {
	s, err := gocron.NewScheduler(gocron.WithLogger(schedulerLogger{logger}))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		pending:   make(map[string]Job),
		executed:  make(map[string]State),
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}, nil
}

// Start launches the scheduler.
func (r *Registry) Start() {
	r.scheduler.Start()
	r.logger.Info("Job scheduler started")
}

// Shutdown cancels in-flight runs and stops the scheduler. Pending jobs are lost.
func (r *Registry) Shutdown() error {
	r.cancel()
	if err := r.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	r.logger.Info("Job scheduler stopped")
	return nil
}

// Schedule registers run to fire once at job.RunAt.
func (r *Registry) Schedule(job Job, run func(context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pending[job.ID]; exists {
		return fmt.Errorf("job %s is already scheduled", job.ID)
	}

	start := gocron.OneTimeJobStartImmediately()
	if job.RunAt.After(time.Now()) {
		start = gocron.OneTimeJobStartDateTime(job.RunAt)
	}

	// fire blocks on r.mu, so it cannot observe the job before it is registered below.
	_, err := r.scheduler.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(func() { r.fire(job.ID, run) }),
		gocron.WithName(job.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.ID, err)
	}
	r.pending[job.ID] = job
	r.logger.Infof("Scheduled job %s (version=%d window=%s) at %s", job.ID, job.Version, job.Window, job.RunAt.Format(time.RFC3339))
	return nil
}

// Status reports the state of a job id.
func (r *Registry) Status(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[id]; ok {
		return State{Status: StatusPending}
	}
	if st, ok := r.executed[id]; ok {
		return st
	}
	return State{Status: StatusUnknown}
}

// Pending returns the number of jobs that have not fired yet.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// fire moves the job out of the pending set before running it.
func (r *Registry) fire(id string, run func(context.Context) error) {
	r.mu.Lock()
	job, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
		r.executed[id] = State{Status: StatusExecuted}
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.logger.Infof("Running job %s (version=%d window=%s)", job.ID, job.Version, job.Window)
	if err := run(r.ctx); err != nil {
		r.logger.Errorf("Job %s failed: %v", job.ID, err)
		r.mu.Lock()
		r.executed[id] = State{Status: StatusExecuted, Error: err.Error()}
		r.mu.Unlock()
		return
	}
	r.logger.Infof("Job %s finished", job.ID)
}

// schedulerLogger adapts the service logger to gocron's key/value logger.
type schedulerLogger struct {
	l *logging.Logger
}

func (s schedulerLogger) entry(args []any) *logrus.Entry {
	fields := logrus.Fields{"component": "scheduler"}
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprint(args[i])] = args[i+1]
	}
	return s.l.WithFields(fields)
}

func (s schedulerLogger) Debug(msg string, args ...any) { s.entry(args).Debug(msg) }
func (s schedulerLogger) Info(msg string, args ...any)  { s.entry(args).Info(msg) }
func (s schedulerLogger) Warn(msg string, args ...any)  { s.entry(args).Warn(msg) }
func (s schedulerLogger) Error(msg string, args ...any) { s.entry(args).Error(msg) }

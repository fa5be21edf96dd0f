package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// DefaultJobTimeout bounds a single run of a job
const DefaultJobTimeout = 2 * time.Minute

// Job is a named maintenance task. Run returns how many rows it changed.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) (int64, error)
}

// Sweeper runs maintenance jobs on cron schedules
type Sweeper struct {
	cron    *cron.Cron
	logger  *logrus.Logger
	metrics *observability.Metrics
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]Job
	ctx  context.Context
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithMetrics records run outcomes
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Sweeper) { s.metrics = metrics }
}

// WithJobTimeout overrides DefaultJobTimeout
func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Sweeper) { s.timeout = timeout }
}

// WithLocation evaluates schedules in loc instead of the local zone
func WithLocation(loc *time.Location) Option {
	return func(s *Sweeper) {
		s.cron = newCron(s.logger, cron.WithLocation(loc))
	}
}

// New creates a sweeper with no jobs
func New(logger *logrus.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Sweeper{
		logger:  logger,
		timeout: DefaultJobTimeout,
		jobs:    make(map[string]Job),
		ctx:     context.Background(),
	}
	s.cron = newCron(logger)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newCron(logger *logrus.Logger, opts ...cron.Option) *cron.Cron {
	cronLogger := cron.PrintfLogger(logger)
	opts = append(opts, cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
	return cron.New(opts...)
}

// Add schedules job. A job with an empty schedule is registered for RunOnce
// but never scheduled.
func (s *Sweeper) Add(job Job) error {
	if job.Name == "" {
		return errors.New("job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %s has no run function", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}

	if job.Schedule != "" {
		name := job.Name
		if _, err := s.cron.AddFunc(job.Schedule, func() { s.run(s.baseContext(), name) }); err != nil {
			return fmt.Errorf("failed to schedule job %s: %w", job.Name, err)
		}
	}
	s.jobs[job.Name] = job
	return nil
}

// Jobs returns the registered job names
func (s *Sweeper) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// RunOnce runs a registered job immediately
func (s *Sweeper) RunOnce(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("unknown job %s", name)
	}
	return s.run(ctx, name)
}

// Start begins running scheduled jobs. Runs use ctx for values and
// cancellation.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.WithField("jobs", len(s.cron.Entries())).Info("Sweeper started")
}

// Stop prevents new runs and waits for running ones until ctx is done
func (s *Sweeper) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		s.logger.Info("Sweeper stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sweeper stop: %w", ctx.Err())
	}
}

func (s *Sweeper) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Sweeper) run(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	job := s.jobs[name]
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := job.Run(ctx)
	entry := s.logger.WithFields(logrus.Fields{
		"job":      name,
		"duration": time.Since(start).String(),
	})

	status := "success"
	if err != nil {
		status = "error"
		entry.WithError(err).Error("Sweep failed")
	} else if n > 0 {
		entry.WithField("affected", n).Info("Sweep completed")
	} else {
		entry.Debug("Sweep completed")
	}

	if s.metrics != nil {
		s.metrics.SweepRunsTotal.WithLabelValues(name, status).Inc()
	}
	return n, err
}

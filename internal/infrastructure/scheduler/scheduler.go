// Package scheduler runs time-based background work on robfig/cron: the
// overdue-invoice sweep and every automation rule with a cron trigger.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crewdesk/backend/internal/infrastructure/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Parser accepts standard five-field expressions and descriptors such as "@hourly"
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Config holds scheduler settings
type Config struct {
	OverdueSweepCron  string
	OverdueSweepBatch int
	MaxSweepBatches   int
	CronRefreshPeriod time.Duration
	JobTimeout        time.Duration
	Location          *time.Location
}

// ConfigFrom maps the scheduler section of the service config
func ConfigFrom(cfg config.SchedulerConfig) Config {
	return Config{
		OverdueSweepCron:  cfg.OverdueSweepCron,
		OverdueSweepBatch: cfg.OverdueSweepBatch,
		MaxSweepBatches:   cfg.MaxSweepBatches,
		CronRefreshPeriod: cfg.CronRefreshPeriod,
		JobTimeout:        cfg.JobTimeout,
		Location:          time.UTC,
	}
}

func (c Config) validate() error {
	if c.JobTimeout <= 0 {
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	}
	if c.CronRefreshPeriod <= 0 {
		return fmt.Errorf("%w: cron refresh period must be positive", ErrInvalidConfig)
	}
	return nil
}

// Func is a unit of scheduled work. ctx carries the job timeout.
type Func func(ctx context.Context) error

// Scheduler wraps a cron runner with zap logging, panic recovery and a
// per-run timeout
type Scheduler struct {
	cfg    Config
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	baseCtx context.Context
	cancel  context.CancelFunc
	jobs    map[string]cron.EntryID
}

// New creates a stopped scheduler
func New(cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger.Named("cron")}
	return &Scheduler{
		cfg: cfg,
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		jobs:   make(map[string]cron.EntryID),
	}, nil
}

// Start begins firing registered jobs
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop halts the runner and waits for running jobs, bounded by ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule registers fn under name, replacing any job with the same name
func (s *Scheduler) Schedule(name, spec string, fn Func) error {
	sched, err := Parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q for %s: %w", spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
	}
	s.jobs[name] = s.cron.Schedule(sched, cron.FuncJob(func() { s.run(name, fn) }))
	return nil
}

// Unschedule removes the named job, if present
func (s *Scheduler) Unschedule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}
}

// Has reports whether a job is registered under name
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// Next returns the next fire time of the named job
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) run(name string, fn Func) {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}

	ctx, cancel := context.WithTimeout(base, s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", name), zap.Duration("took", time.Since(start)), zap.Error(err))
		return
	}
	s.logger.Debug("scheduled job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

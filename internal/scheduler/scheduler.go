package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/avireply/avireply/pkg/logger"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrLockHeld   = errors.New("job lease held by another instance")
	ErrJobRunning = errors.New("job already running")
)

// leaseMargin keeps the lease alive a little past the cycle timeout.
const leaseMargin = time.Minute

// LockStore hands out named leases shared by every instance using the same database.
type LockStore interface {
	AcquireLock(name, instanceID string, ttl time.Duration) (bool, error)
	ReleaseLock(name, instanceID string) error
}

// Job is a periodic cycle.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

type entry struct {
	job     Job
	running sync.Mutex
}

// Scheduler runs jobs on their cron schedules. Every run is bounded by the
// cycle timeout and only happens while this instance holds the job's lease.
type Scheduler struct {
	logger     *logger.Logger
	locks      LockStore
	instanceID string
	timeout    time.Duration

	cron *cron.Cron
	jobs map[string]*entry
}

func New(locks LockStore, instanceID string, timeout time.Duration, logger *logger.Logger) *Scheduler {
	cl := cronLogger{logger}
	return &Scheduler{
		logger:     logger,
		locks:      locks,
		instanceID: instanceID,
		timeout:    timeout,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs: make(map[string]*entry),
	}
}

// Register adds a job. It must be called before Start.
func (s *Scheduler) Register(job Job) error {
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	e := &entry{job: job}
	if _, err := s.cron.AddFunc(job.Schedule, func() {
		if err := s.run(context.Background(), e); err != nil {
			if errors.Is(err, ErrLockHeld) || errors.Is(err, ErrJobRunning) {
				s.logger.Debug("Job skipped", "job", job.Name, "reason", err)
				return
			}
			s.logger.Error("Job failed", "job", job.Name, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Schedule, job.Name, err)
	}
	s.jobs[job.Name] = e
	s.logger.Info("Job registered", "job", job.Name, "schedule", job.Schedule)
	return nil
}

// RunNow runs a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	e, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, e)
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stopped before running jobs finished")
	}
}

func (s *Scheduler) run(parent context.Context, e *entry) error {
	if !e.running.TryLock() {
		return ErrJobRunning
	}
	defer e.running.Unlock()

	name := e.job.Name
	acquired, err := s.locks.AcquireLock(name, s.instanceID, s.timeout+leaseMargin)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrLockHeld
	}
	defer func() {
		if err := s.locks.ReleaseLock(name, s.instanceID); err != nil {
			s.logger.Error("Failed to release job lease", "job", name, "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Debug("Job started", "job", name)
	err = e.job.Run(ctx)
	s.logger.Debug("Job finished", "job", name, "duration", time.Since(start).String())

	return err
}

// cronLogger routes cron's own messages through the application logger.
type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/home-express/finance-core/pkg/logger"
	"github.com/home-express/finance-core/pkg/prom"
)

// Job is one periodic batch. Run must be safe to repeat: a crashed or
// skipped run is simply picked up by the next tick.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context, now time.Time) error
}

// Scheduler runs every registered job on its own ticker. A tick is skipped
// while another instance holds the job lock.
type Scheduler struct {
	lock    Lock
	lockTTL time.Duration
	jobs    map[string]Job
	order   []string
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(lock Lock, lockTTL time.Duration) *Scheduler {
	if lock == nil {
		lock = NewLocalLock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		lock:    lock,
		lockTTL: lockTTL,
		jobs:    make(map[string]Job),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("job needs a name and a run function")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	if local, ok := s.lock.(*LocalLock); ok {
		local.register(job.Name)
	}
	s.jobs[job.Name] = job
	s.order = append(s.order, job.Name)
	return nil
}

func (s *Scheduler) Jobs() []string {
	return append([]string(nil), s.order...)
}

// Start launches one loop per job and returns immediately.
func (s *Scheduler) Start() {
	for _, name := range s.order {
		job := s.jobs[name]
		s.wg.Add(1)
		go s.loop(job)
		logger.Info("scheduler job started", "job", job.Name, "interval", job.Interval)
	}
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.RunOnce(s.ctx, job.Name); err != nil && !errors.Is(err, ErrLockHeld) {
				logger.Error("scheduler job failed", "job", job.Name, "error", err)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// RunOnce runs a job immediately under its lock.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	log := logger.With("job", job.Name)

	release, err := s.lock.Acquire(job.Name, s.lockTTL)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			log.Info("scheduler job skipped, lock held elsewhere")
		}
		return err
	}
	defer release()

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	started := s.now()
	err = job.Run(ctx, started)
	elapsed := time.Since(started)
	prom.SchedulerJob(job.Name, elapsed.Seconds(), err)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}
	log.Info("scheduler job finished", "duration", elapsed)
	return nil
}

// Stop cancels running jobs and waits for their loops to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	logger.Info("scheduler stopped")
}

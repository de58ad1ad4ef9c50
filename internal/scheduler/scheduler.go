package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/bluevlad/HealthPulse/internal/config"
	"github.com/bluevlad/HealthPulse/internal/model"
	"github.com/bluevlad/HealthPulse/internal/pipeline"
)

// Pipeline is the orchestrator surface the scheduler drives.
type Pipeline interface {
	RunOnce(ctx context.Context, date string, force bool) []pipeline.RunResult
}

// Scheduler triggers the full pipeline once a day at the configured
// local time.
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	config    *config.SchedulerConfig
	pipeline  Pipeline
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.SchedulerConfig, p Pipeline) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		config:   cfg,
		pipeline: p,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	// A restart after Stop needs a fresh context.
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	// Run daily at the configured hour and minute, local time. A
	// restart reuses the entry registered on the first Start.
	if s.entryID == 0 {
		schedule := fmt.Sprintf("0 %d %d * * *", s.config.Minute, s.config.Hour)
		entryID, err := s.cron.AddFunc(schedule, s.runDaily)
		if err != nil {
			return fmt.Errorf("failed to add cron job: %w", err)
		}
		s.entryID = entryID
	}
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started, daily run at %02d:%02d", s.config.Hour, s.config.Minute)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	// Cancel context to stop any running pipeline work
	s.cancel()

	// Stop the cron scheduler
	ctx := s.cron.Stop()

	// Wait for all jobs to complete
	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// runDaily executes the full pipeline for today's date.
func (s *Scheduler) runDaily() {
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		logrus.Info("Scheduler not running, skipping pipeline cycle")
		return
	}
	s.mu.RUnlock()

	date := model.DateOf(time.Now())
	logrus.Infof("Starting scheduled pipeline run for %s", date)

	startTime := time.Now()
	results := s.pipeline.RunOnce(s.ctx, date, false)

	for _, result := range results {
		if result.Outcome == pipeline.OutcomeFailed {
			logrus.Errorf("Scheduled %s stage failed: %s", result.Stage, result.Error)
		}
	}

	logrus.Infof("Scheduled pipeline run for %s completed in %v", date, time.Since(startTime))
}

// RunNow triggers the pipeline once outside the schedule (for manual
// triggering).
func (s *Scheduler) RunNow() {
	logrus.Info("Running pipeline once on demand")
	s.runDaily()
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}

	entry := s.cron.Entry(s.entryID)
	return entry.Next
}

// GetLastRun returns the time of the last run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}

	entry := s.cron.Entry(s.entryID)
	return entry.Prev
}

// Wait waits for in-flight pipeline work to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/bluevlad/HealthPulse/internal/config"
	"github.com/bluevlad/HealthPulse/internal/pipeline"
)

// dummyPipeline counts invocations and does nothing
type dummyPipeline struct {
	runs int32
}

func (d *dummyPipeline) RunOnce(ctx context.Context, date string, force bool) []pipeline.RunResult {
	atomic.AddInt32(&d.runs, 1)
	return nil
}

func TestSchedulerRestart(t *testing.T) {
	cfg := &config.SchedulerConfig{Hour: 8, Minute: 0}
	sched := NewScheduler(cfg, &dummyPipeline{})

	if err := sched.Start(); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if !sched.IsRunning() {
		t.Fatalf("scheduler should be running after Start")
	}
	if err := sched.Start(); err == nil {
		t.Fatalf("second Start while running should fail")
	}
	if err := sched.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if sched.IsRunning() {
		t.Fatalf("scheduler should not be running after Stop")
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if !sched.IsRunning() {
		t.Fatalf("scheduler should be running after second Start")
	}
	sched.Stop()
}

func TestSchedulerNextRun(t *testing.T) {
	cfg := &config.SchedulerConfig{Hour: 8, Minute: 30}
	sched := NewScheduler(cfg, &dummyPipeline{})

	if !sched.GetNextRun().IsZero() {
		t.Fatalf("next run should be zero before Start")
	}

	if err := sched.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer sched.Stop()

	next := sched.GetNextRun()
	if next.IsZero() {
		t.Fatalf("next run should be scheduled after Start")
	}
	if next.Hour() != 8 || next.Minute() != 30 {
		t.Fatalf("next run should be at 08:30, got %v", next)
	}
}

func TestRunNowTriggersPipeline(t *testing.T) {
	cfg := &config.SchedulerConfig{Hour: 8, Minute: 0}
	p := &dummyPipeline{}
	sched := NewScheduler(cfg, p)

	if err := sched.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer sched.Stop()

	sched.RunNow()
	sched.Wait()

	if atomic.LoadInt32(&p.runs) != 1 {
		t.Fatalf("pipeline should have run exactly once, ran %d times", p.runs)
	}
}

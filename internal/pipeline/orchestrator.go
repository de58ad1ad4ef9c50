// Package pipeline sequences the collect, process, and send stages for
// one calendar date and owns all DailyRun bookkeeping.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bluevlad/HealthPulse/internal/digest"
	"github.com/bluevlad/HealthPulse/internal/metrics"
	"github.com/bluevlad/HealthPulse/internal/model"
	"github.com/bluevlad/HealthPulse/internal/repository"
)

// ErrPrerequisiteNotMet is returned when the send stage is requested
// before the process stage has completed for the date.
var ErrPrerequisiteNotMet = errors.New("process stage has not completed for this date")

// Outcome is the result classification of one stage invocation.
type Outcome string

const (
	OutcomeDone               Outcome = "done"
	OutcomeFailed             Outcome = "failed"
	OutcomeSkipped            Outcome = "skipped"
	OutcomePrerequisiteNotMet Outcome = "prerequisite_not_met"
)

// Counts carries the stage counters of a RunResult; only the field for
// the executed stage is set.
type Counts struct {
	Collect *model.CollectCounts `json:"collect,omitempty"`
	Process *model.ProcessCounts `json:"process,omitempty"`
	Send    *model.SendCounts    `json:"send,omitempty"`
}

// RunResult reports one stage invocation to the caller.
type RunResult struct {
	Stage   model.Stage `json:"stage"`
	Outcome Outcome     `json:"outcome"`
	Counts  Counts      `json:"counts"`
	Error   string      `json:"error,omitempty"`
}

// RunStore is the DailyRun persistence the orchestrator drives.
type RunStore interface {
	GetOrCreate(ctx context.Context, date string) (*model.DailyRun, error)
	Get(ctx context.Context, date string) (*model.DailyRun, error)
	BeginStage(ctx context.Context, date string, stage model.Stage, force bool) error
	FinishCollect(ctx context.Context, date string, status model.StageStatus, errMsg string, counts model.CollectCounts) error
	FinishProcess(ctx context.Context, date string, status model.StageStatus, errMsg string, counts model.ProcessCounts) error
	FinishSend(ctx context.Context, date string, status model.StageStatus, errMsg string, counts model.SendCounts) error
}

// Collector runs the collect stage work.
type Collector interface {
	Collect(ctx context.Context, day time.Time) (model.CollectCounts, error)
}

// Processor runs the process stage work.
type Processor interface {
	Process(ctx context.Context, day time.Time) (model.ProcessCounts, error)
}

// DigestBuilder assembles the email body for the send stage.
type DigestBuilder interface {
	Build(ctx context.Context, day time.Time) (digest.Digest, error)
}

// Mailer fans the digest out to subscribers.
type Mailer interface {
	Send(ctx context.Context, d digest.Digest) (model.SendCounts, error)
}

// Orchestrator sequences the three pipeline stages for a calendar date.
// All stage-state decisions go through RunStore's compare-and-set
// transitions, so concurrent invocations (scheduler plus manual API
// call, or two replicas) resolve in storage, not in process memory.
type Orchestrator struct {
	runs      RunStore
	collector Collector
	processor Processor
	builder   DigestBuilder
	mailer    Mailer
	metrics   *metrics.Metrics
}

// New creates an orchestrator. metrics may be nil in tests.
func New(runs RunStore, collector Collector, processor Processor, builder DigestBuilder, mailer Mailer, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		runs:      runs,
		collector: collector,
		processor: processor,
		builder:   builder,
		mailer:    mailer,
		metrics:   m,
	}
}

// parseDate validates and normalizes a run date string.
func parseDate(date string) (time.Time, error) {
	day, err := time.ParseInLocation(model.DateLayout, date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run date %q: %w", date, err)
	}
	return day, nil
}

// RunCollect executes the collect stage for a date. A stage already
// done for the date is reported as skipped with its recorded counts
// unless force is set.
func (o *Orchestrator) RunCollect(ctx context.Context, date string, force bool) RunResult {
	day, err := parseDate(date)
	if err != nil {
		return o.finish(RunResult{Stage: model.StageCollect, Outcome: OutcomeFailed, Error: err.Error()})
	}

	run, err := o.runs.GetOrCreate(ctx, date)
	if err != nil {
		return o.finish(RunResult{Stage: model.StageCollect, Outcome: OutcomeFailed, Error: err.Error()})
	}
	if run.CollectStatus == model.StageDone && !force {
		counts := run.CollectCounts()
		logrus.Infof("Collect for %s already done, skipping", date)
		return o.finish(RunResult{Stage: model.StageCollect, Outcome: OutcomeSkipped, Counts: Counts{Collect: &counts}})
	}

	if err := o.runs.BeginStage(ctx, date, model.StageCollect, force); err != nil {
		return o.finish(RunResult{Stage: model.StageCollect, Outcome: OutcomeFailed, Error: err.Error()})
	}

	start := time.Now()
	counts, collectErr := o.collector.Collect(ctx, day)
	o.observeDuration(model.StageCollect, start)
	if o.metrics != nil {
		o.metrics.ArticlesFetched.Add(float64(counts.Fetched))
		o.metrics.ArticlesNew.Add(float64(counts.New))
		o.metrics.ArticlesDuplicate.Add(float64(counts.Duplicate))
	}

	status, errMsg := model.StageDone, ""
	outcome := OutcomeDone
	if collectErr != nil {
		status, errMsg, outcome = model.StageFailed, collectErr.Error(), OutcomeFailed
		logrus.Errorf("Collect for %s failed: %v", date, collectErr)
	}
	if err := o.runs.FinishCollect(ctx, date, status, errMsg, counts); err != nil {
		return o.finish(RunResult{Stage: model.StageCollect, Outcome: OutcomeFailed, Counts: Counts{Collect: &counts}, Error: err.Error()})
	}
	return o.finish(RunResult{Stage: model.StageCollect, Outcome: outcome, Counts: Counts{Collect: &counts}, Error: errMsg})
}

// RunProcess executes the process stage for a date.
func (o *Orchestrator) RunProcess(ctx context.Context, date string, force bool) RunResult {
	day, err := parseDate(date)
	if err != nil {
		return o.finish(RunResult{Stage: model.StageProcess, Outcome: OutcomeFailed, Error: err.Error()})
	}

	run, err := o.runs.GetOrCreate(ctx, date)
	if err != nil {
		return o.finish(RunResult{Stage: model.StageProcess, Outcome: OutcomeFailed, Error: err.Error()})
	}
	if run.ProcessStatus == model.StageDone && !force {
		counts := run.ProcessCounts()
		logrus.Infof("Process for %s already done, skipping", date)
		return o.finish(RunResult{Stage: model.StageProcess, Outcome: OutcomeSkipped, Counts: Counts{Process: &counts}})
	}
	if run.CollectStatus != model.StageDone {
		logrus.Warnf("Process for %s starting although collect is %s", date, run.CollectStatus)
	}

	if err := o.runs.BeginStage(ctx, date, model.StageProcess, force); err != nil {
		return o.finish(RunResult{Stage: model.StageProcess, Outcome: OutcomeFailed, Error: err.Error()})
	}

	start := time.Now()
	counts, processErr := o.processor.Process(ctx, day)
	o.observeDuration(model.StageProcess, start)
	if o.metrics != nil {
		o.metrics.SummariesCreated.Add(float64(counts.Summarized))
		o.metrics.SummaryFailures.Add(float64(counts.Failed))
	}

	status, errMsg := model.StageDone, ""
	outcome := OutcomeDone
	if processErr != nil {
		status, errMsg, outcome = model.StageFailed, processErr.Error(), OutcomeFailed
		logrus.Errorf("Process for %s failed: %v", date, processErr)
	}
	if err := o.runs.FinishProcess(ctx, date, status, errMsg, counts); err != nil {
		return o.finish(RunResult{Stage: model.StageProcess, Outcome: OutcomeFailed, Counts: Counts{Process: &counts}, Error: err.Error()})
	}
	return o.finish(RunResult{Stage: model.StageProcess, Outcome: outcome, Counts: Counts{Process: &counts}, Error: errMsg})
}

// RunSend executes the send stage for a date. It refuses to run, with
// no state written, until the process stage is done for the date.
func (o *Orchestrator) RunSend(ctx context.Context, date string, force bool) RunResult {
	day, err := parseDate(date)
	if err != nil {
		return o.finish(RunResult{Stage: model.StageSend, Outcome: OutcomeFailed, Error: err.Error()})
	}

	run, err := o.runs.GetOrCreate(ctx, date)
	if err != nil {
		return o.finish(RunResult{Stage: model.StageSend, Outcome: OutcomeFailed, Error: err.Error()})
	}
	if run.ProcessStatus != model.StageDone {
		err := fmt.Errorf("send for %s: %w (process is %s)", date, ErrPrerequisiteNotMet, run.ProcessStatus)
		logrus.Warn(err.Error())
		return o.finish(RunResult{Stage: model.StageSend, Outcome: OutcomePrerequisiteNotMet, Error: err.Error()})
	}
	if run.SendStatus == model.StageDone && !force {
		counts := run.SendCounts()
		logrus.Infof("Send for %s already done, skipping", date)
		return o.finish(RunResult{Stage: model.StageSend, Outcome: OutcomeSkipped, Counts: Counts{Send: &counts}})
	}

	if err := o.runs.BeginStage(ctx, date, model.StageSend, force); err != nil {
		return o.finish(RunResult{Stage: model.StageSend, Outcome: OutcomeFailed, Error: err.Error()})
	}

	start := time.Now()
	counts, sendErr := o.runSendWork(ctx, day)
	o.observeDuration(model.StageSend, start)
	if o.metrics != nil {
		o.metrics.EmailsSent.Add(float64(counts.Sent))
		o.metrics.EmailsFailed.Add(float64(counts.Failed))
	}

	status, errMsg := model.StageDone, ""
	outcome := OutcomeDone
	if sendErr != nil {
		status, errMsg, outcome = model.StageFailed, sendErr.Error(), OutcomeFailed
		logrus.Errorf("Send for %s failed: %v", date, sendErr)
	}
	if err := o.runs.FinishSend(ctx, date, status, errMsg, counts); err != nil {
		return o.finish(RunResult{Stage: model.StageSend, Outcome: OutcomeFailed, Counts: Counts{Send: &counts}, Error: err.Error()})
	}
	return o.finish(RunResult{Stage: model.StageSend, Outcome: outcome, Counts: Counts{Send: &counts}, Error: errMsg})
}

func (o *Orchestrator) runSendWork(ctx context.Context, day time.Time) (model.SendCounts, error) {
	d, err := o.builder.Build(ctx, day)
	if err != nil {
		return model.SendCounts{}, err
	}
	return o.mailer.Send(ctx, d)
}

// RunOnce executes collect, process, and send in order for a date,
// halting at the first failure so later stages never run against a
// broken predecessor. Stages that are already done are skipped, which
// makes a full re-invocation after a partial failure resume exactly
// where the pipeline stopped.
func (o *Orchestrator) RunOnce(ctx context.Context, date string, force bool) []RunResult {
	results := make([]RunResult, 0, 3)

	collect := o.RunCollect(ctx, date, force)
	results = append(results, collect)
	if collect.Outcome == OutcomeFailed {
		return results
	}

	process := o.RunProcess(ctx, date, force)
	results = append(results, process)
	if process.Outcome == OutcomeFailed {
		return results
	}

	send := o.RunSend(ctx, date, force)
	results = append(results, send)
	return results
}

// GetRunStatus returns the DailyRun for a date, or nil when no stage
// was ever invoked for it.
func (o *Orchestrator) GetRunStatus(ctx context.Context, date string) (*model.DailyRun, error) {
	if _, err := parseDate(date); err != nil {
		return nil, err
	}
	return o.runs.Get(ctx, date)
}

func (o *Orchestrator) finish(result RunResult) RunResult {
	if o.metrics != nil {
		o.metrics.StageRuns.WithLabelValues(string(result.Stage), string(result.Outcome)).Inc()
	}
	return result
}

func (o *Orchestrator) observeDuration(stage model.Stage, start time.Time) {
	if o.metrics != nil {
		o.metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}
}

// IsAlreadyRunning reports whether a failed stage result lost the
// begin-stage compare-and-set to a concurrent invocation. Handlers use
// it to answer 409 instead of 500.
func IsAlreadyRunning(result RunResult) bool {
	return result.Outcome == OutcomeFailed &&
		strings.Contains(result.Error, repository.ErrAlreadyRunning.Error())
}

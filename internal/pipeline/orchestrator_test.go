package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluevlad/HealthPulse/internal/digest"
	"github.com/bluevlad/HealthPulse/internal/model"
	"github.com/bluevlad/HealthPulse/internal/repository"
)

// memRunStore mimics the storage compare-and-set semantics in memory.
type memRunStore struct {
	runs map[string]*model.DailyRun
}

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: map[string]*model.DailyRun{}}
}

func (s *memRunStore) GetOrCreate(ctx context.Context, date string) (*model.DailyRun, error) {
	if run, ok := s.runs[date]; ok {
		copied := *run
		return &copied, nil
	}
	run := &model.DailyRun{
		RunDate:       date,
		CollectStatus: model.StagePending,
		ProcessStatus: model.StagePending,
		SendStatus:    model.StagePending,
	}
	s.runs[date] = run
	copied := *run
	return &copied, nil
}

func (s *memRunStore) Get(ctx context.Context, date string) (*model.DailyRun, error) {
	run, ok := s.runs[date]
	if !ok {
		return nil, nil
	}
	copied := *run
	return &copied, nil
}

func (s *memRunStore) BeginStage(ctx context.Context, date string, stage model.Stage, force bool) error {
	run := s.runs[date]
	if stage == model.StageSend && run.ProcessStatus != model.StageDone {
		return fmt.Errorf("%s stage for %s: %w", stage, date, repository.ErrStageConflict)
	}

	status := run.StatusOf(stage)
	startable := status == model.StagePending || status == model.StageFailed || (force && status == model.StageDone)
	if !startable {
		if status == model.StageInProgress {
			return fmt.Errorf("%s stage for %s: %w", stage, date, repository.ErrAlreadyRunning)
		}
		return fmt.Errorf("%s stage for %s: %w", stage, date, repository.ErrStageConflict)
	}

	now := time.Now()
	switch stage {
	case model.StageCollect:
		run.CollectStatus, run.CollectStartedAt = model.StageInProgress, &now
	case model.StageProcess:
		run.ProcessStatus, run.ProcessStartedAt = model.StageInProgress, &now
	case model.StageSend:
		run.SendStatus, run.SendStartedAt = model.StageInProgress, &now
	}
	return nil
}

func (s *memRunStore) FinishCollect(ctx context.Context, date string, status model.StageStatus, errMsg string, counts model.CollectCounts) error {
	run := s.runs[date]
	run.CollectStatus, run.CollectError = status, errMsg
	run.ArticlesFetched, run.ArticlesNew, run.ArticlesDuplicate = counts.Fetched, counts.New, counts.Duplicate
	return nil
}

func (s *memRunStore) FinishProcess(ctx context.Context, date string, status model.StageStatus, errMsg string, counts model.ProcessCounts) error {
	run := s.runs[date]
	run.ProcessStatus, run.ProcessError = status, errMsg
	run.ArticlesSummarized, run.SummarizeFailures, run.ProcessSkipped = counts.Summarized, counts.Failed, counts.Skipped
	return nil
}

func (s *memRunStore) FinishSend(ctx context.Context, date string, status model.StageStatus, errMsg string, counts model.SendCounts) error {
	run := s.runs[date]
	run.SendStatus, run.SendError = status, errMsg
	run.EmailsSent, run.EmailsFailed, run.EmailsSkipped = counts.Sent, counts.Failed, counts.Skipped
	return nil
}

type fakeCollector struct {
	counts model.CollectCounts
	err    error
	calls  int
}

func (f *fakeCollector) Collect(ctx context.Context, day time.Time) (model.CollectCounts, error) {
	f.calls++
	return f.counts, f.err
}

type fakeProcessor struct {
	counts model.ProcessCounts
	err    error
	calls  int
}

func (f *fakeProcessor) Process(ctx context.Context, day time.Time) (model.ProcessCounts, error) {
	f.calls++
	return f.counts, f.err
}

type fakeBuilder struct {
	digest digest.Digest
	err    error
}

func (f *fakeBuilder) Build(ctx context.Context, day time.Time) (digest.Digest, error) {
	return f.digest, f.err
}

type fakeMailer struct {
	counts model.SendCounts
	err    error
	calls  int
}

func (f *fakeMailer) Send(ctx context.Context, d digest.Digest) (model.SendCounts, error) {
	f.calls++
	return f.counts, f.err
}

type fixture struct {
	runs      *memRunStore
	collector *fakeCollector
	processor *fakeProcessor
	builder   *fakeBuilder
	mailer    *fakeMailer
	orch      *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		runs:      newMemRunStore(),
		collector: &fakeCollector{counts: model.CollectCounts{Fetched: 10, New: 7, Duplicate: 3}},
		processor: &fakeProcessor{counts: model.ProcessCounts{Summarized: 7}},
		builder:   &fakeBuilder{digest: digest.Digest{Date: "2025-06-15", Entries: []digest.Entry{{Title: "t"}}}},
		mailer:    &fakeMailer{counts: model.SendCounts{Sent: 2}},
	}
	f.orch = New(f.runs, f.collector, f.processor, f.builder, f.mailer, nil)
	return f
}

const testDate = "2025-06-15"

func TestRunOnceHappyPath(t *testing.T) {
	f := newFixture()

	results := f.orch.RunOnce(context.Background(), testDate, false)
	require.Len(t, results, 3)

	assert.Equal(t, model.StageCollect, results[0].Stage)
	assert.Equal(t, OutcomeDone, results[0].Outcome)
	assert.Equal(t, 7, results[0].Counts.Collect.New)

	assert.Equal(t, model.StageProcess, results[1].Stage)
	assert.Equal(t, OutcomeDone, results[1].Outcome)

	assert.Equal(t, model.StageSend, results[2].Stage)
	assert.Equal(t, OutcomeDone, results[2].Outcome)
	assert.Equal(t, 2, results[2].Counts.Send.Sent)

	run := f.runs.runs[testDate]
	assert.Equal(t, model.StageDone, run.CollectStatus)
	assert.Equal(t, model.StageDone, run.ProcessStatus)
	assert.Equal(t, model.StageDone, run.SendStatus)
}

func TestRunOnceHaltsAtCollectFailure(t *testing.T) {
	f := newFixture()
	f.collector.err = errors.New("news source unavailable")

	results := f.orch.RunOnce(context.Background(), testDate, false)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeFailed, results[0].Outcome)
	assert.Contains(t, results[0].Error, "news source unavailable")

	// Later stages never ran and remain pending
	assert.Equal(t, 0, f.processor.calls)
	assert.Equal(t, 0, f.mailer.calls)
	run := f.runs.runs[testDate]
	assert.Equal(t, model.StageFailed, run.CollectStatus)
	assert.Equal(t, model.StagePending, run.ProcessStatus)
	assert.Equal(t, model.StagePending, run.SendStatus)
}

func TestSendRequiresProcessDone(t *testing.T) {
	f := newFixture()

	result := f.orch.RunSend(context.Background(), testDate, false)
	assert.Equal(t, OutcomePrerequisiteNotMet, result.Outcome)

	// The refusal writes no state
	run := f.runs.runs[testDate]
	assert.Equal(t, model.StagePending, run.SendStatus)
	assert.Nil(t, run.SendStartedAt)
	assert.Equal(t, 0, f.mailer.calls)
}

func TestSendAfterProcessFailureRefused(t *testing.T) {
	f := newFixture()
	f.orch.RunCollect(context.Background(), testDate, false)
	f.processor.err = errors.New("language model unavailable")
	f.orch.RunProcess(context.Background(), testDate, false)

	result := f.orch.RunSend(context.Background(), testDate, false)
	assert.Equal(t, OutcomePrerequisiteNotMet, result.Outcome)
}

func TestRerunSkipsDoneStages(t *testing.T) {
	f := newFixture()
	f.orch.RunOnce(context.Background(), testDate, false)

	results := f.orch.RunOnce(context.Background(), testDate, false)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, OutcomeSkipped, r.Outcome, string(r.Stage))
	}

	// The skipped results surface the recorded counts
	assert.Equal(t, 7, results[0].Counts.Collect.New)
	assert.Equal(t, 7, results[1].Counts.Process.Summarized)
	assert.Equal(t, 2, results[2].Counts.Send.Sent)

	// The underlying work ran exactly once
	assert.Equal(t, 1, f.collector.calls)
	assert.Equal(t, 1, f.processor.calls)
	assert.Equal(t, 1, f.mailer.calls)
}

func TestRerunResumesAfterPartialFailure(t *testing.T) {
	f := newFixture()
	f.processor.err = errors.New("language model unavailable")

	results := f.orch.RunOnce(context.Background(), testDate, false)
	require.Len(t, results, 2)
	assert.Equal(t, OutcomeFailed, results[1].Outcome)

	// Heal the model and re-run: collect is skipped, process retried
	f.processor.err = nil
	results = f.orch.RunOnce(context.Background(), testDate, false)
	require.Len(t, results, 3)
	assert.Equal(t, OutcomeSkipped, results[0].Outcome)
	assert.Equal(t, OutcomeDone, results[1].Outcome)
	assert.Equal(t, OutcomeDone, results[2].Outcome)
	assert.Equal(t, 1, f.collector.calls)
	assert.Equal(t, 2, f.processor.calls)
}

func TestForceReexecutesDoneStage(t *testing.T) {
	f := newFixture()
	f.orch.RunOnce(context.Background(), testDate, false)

	result := f.orch.RunCollect(context.Background(), testDate, true)
	assert.Equal(t, OutcomeDone, result.Outcome)
	assert.Equal(t, 2, f.collector.calls)
}

func TestAlreadyRunningStageRefused(t *testing.T) {
	f := newFixture()
	_, err := f.runs.GetOrCreate(context.Background(), testDate)
	require.NoError(t, err)
	require.NoError(t, f.runs.BeginStage(context.Background(), testDate, model.StageCollect, false))

	result := f.orch.RunCollect(context.Background(), testDate, false)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.True(t, IsAlreadyRunning(result))
	assert.Equal(t, 0, f.collector.calls)
}

func TestInvalidDateRejected(t *testing.T) {
	f := newFixture()
	result := f.orch.RunCollect(context.Background(), "15-06-2025", false)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Contains(t, result.Error, "invalid run date")
}

func TestGetRunStatus(t *testing.T) {
	f := newFixture()

	run, err := f.orch.GetRunStatus(context.Background(), testDate)
	require.NoError(t, err)
	assert.Nil(t, run)

	f.orch.RunCollect(context.Background(), testDate, false)
	run, err = f.orch.GetRunStatus(context.Background(), testDate)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.StageDone, run.CollectStatus)
	assert.Equal(t, 7, run.ArticlesNew)

	_, err = f.orch.GetRunStatus(context.Background(), "junk")
	assert.Error(t, err)
}

func TestEmptyDigestStillSends(t *testing.T) {
	f := newFixture()
	f.builder.digest = digest.Digest{Date: testDate}
	f.mailer.counts = model.SendCounts{Skipped: 3}

	f.orch.RunCollect(context.Background(), testDate, false)
	f.orch.RunProcess(context.Background(), testDate, false)
	result := f.orch.RunSend(context.Background(), testDate, false)

	assert.Equal(t, OutcomeDone, result.Outcome)
	assert.Equal(t, 3, result.Counts.Send.Skipped)
	assert.Equal(t, 1, f.mailer.calls)
}

func TestRunOnceHaltsWhenProcessAlreadyRunning(t *testing.T) {
	// A concurrent invocation holds the process stage; RunOnce must stop
	// there and never reach send.
	f := newFixture()
	_, err := f.runs.GetOrCreate(context.Background(), testDate)
	require.NoError(t, err)
	require.NoError(t, f.runs.BeginStage(context.Background(), testDate, model.StageProcess, false))

	results := f.orch.RunOnce(context.Background(), testDate, false)
	require.Len(t, results, 2)
	assert.Equal(t, OutcomeDone, results[0].Outcome)
	assert.Equal(t, OutcomeFailed, results[1].Outcome)
	assert.True(t, IsAlreadyRunning(results[1]))
}

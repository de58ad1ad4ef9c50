package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bluevlad/HealthPulse/internal/model"
)

// ErrAlreadyRunning is returned when a stage transition loses the
// compare-and-set: another invocation already holds the stage
// in_progress (and is not stale yet).
var ErrAlreadyRunning = errors.New("stage is already in progress for this date")

// ErrStageConflict is returned when a stage cannot be started from its
// current state, e.g. re-running a done stage without force.
var ErrStageConflict = errors.New("stage is not in a startable state")

// RunRepository persists DailyRun rows. All stage transitions go through
// a compare-and-set UPDATE so the "is a run active" guard lives in
// storage rather than process memory: it survives restarts and holds
// across multiple processes (the scheduler and a manual CLI invocation
// cannot both enter the same stage).
type RunRepository struct {
	db         *gorm.DB
	staleAfter time.Duration
}

func NewRunRepository(db *gorm.DB, staleAfter time.Duration) *RunRepository {
	return &RunRepository{db: db, staleAfter: staleAfter}
}

// GetOrCreate returns the DailyRun for a date, creating the pending row
// on first touch.
func (r *RunRepository) GetOrCreate(ctx context.Context, date string) (*model.DailyRun, error) {
	run := model.DailyRun{
		RunDate:       date,
		CollectStatus: model.StagePending,
		ProcessStatus: model.StagePending,
		SendStatus:    model.StagePending,
	}
	err := r.db.WithContext(ctx).
		Where("run_date = ?", date).
		Attrs(run).
		FirstOrCreate(&run).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get or create daily run %s: %w", date, err)
	}
	return &run, nil
}

// Get returns the DailyRun for a date, or nil when no stage has ever
// been invoked for it.
func (r *RunRepository) Get(ctx context.Context, date string) (*model.DailyRun, error) {
	var run model.DailyRun
	err := r.db.WithContext(ctx).Where("run_date = ?", date).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load daily run %s: %w", date, err)
	}
	return &run, nil
}

// Recent returns the latest runs for the dashboard API.
func (r *RunRepository) Recent(ctx context.Context, limit int) ([]model.DailyRun, error) {
	var runs []model.DailyRun
	q := r.db.WithContext(ctx).Order("run_date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list daily runs: %w", err)
	}
	return runs, nil
}

func stageColumns(stage model.Stage) (statusCol, startedCol, finishedCol, errCol string) {
	switch stage {
	case model.StageCollect:
		return "collect_status", "collect_started_at", "collect_finished_at", "collect_error"
	case model.StageProcess:
		return "process_status", "process_started_at", "process_finished_at", "process_error"
	case model.StageSend:
		return "send_status", "send_started_at", "send_finished_at", "send_error"
	}
	return "", "", "", ""
}

// BeginStage atomically moves a stage to in_progress. Allowed prior
// states are pending and failed; done additionally when force is set;
// and a stale in_progress (started longer than staleAfter ago) is taken
// over so a killed process cannot wedge the pipeline. The send stage
// transition also requires process to be done, enforcing the hard
// ordering invariant inside the same UPDATE.
func (r *RunRepository) BeginStage(ctx context.Context, date string, stage model.Stage, force bool) error {
	statusCol, startedCol, _, errCol := stageColumns(stage)
	if statusCol == "" {
		return fmt.Errorf("unknown stage %q", stage)
	}

	now := time.Now()
	updates := map[string]interface{}{
		statusCol:  model.StageInProgress,
		startedCol: &now,
		errCol:     "",
	}

	allowed := []model.StageStatus{model.StagePending, model.StageFailed}
	if force {
		allowed = append(allowed, model.StageDone)
	}

	q := r.db.WithContext(ctx).
		Model(&model.DailyRun{}).
		Where("run_date = ?", date).
		Where(statusCol+" IN ?", allowed)
	if stage == model.StageSend {
		q = q.Where("process_status = ?", model.StageDone)
	}

	result := q.Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to begin %s stage: %w", stage, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	// Lost the compare-and-set. A stale in_progress stage is eligible
	// for takeover; anything else is a genuine conflict.
	if r.staleAfter > 0 {
		cutoff := now.Add(-r.staleAfter)
		q = r.db.WithContext(ctx).
			Model(&model.DailyRun{}).
			Where("run_date = ?", date).
			Where(statusCol+" = ? AND "+startedCol+" <= ?", model.StageInProgress, cutoff)
		if stage == model.StageSend {
			q = q.Where("process_status = ?", model.StageDone)
		}
		result = q.Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to take over stale %s stage: %w", stage, result.Error)
		}
		if result.RowsAffected == 1 {
			return nil
		}
	}

	run, err := r.Get(ctx, date)
	if err != nil {
		return err
	}
	if run != nil && run.StatusOf(stage) == model.StageInProgress {
		return fmt.Errorf("%s stage for %s: %w", stage, date, ErrAlreadyRunning)
	}
	return fmt.Errorf("%s stage for %s: %w", stage, date, ErrStageConflict)
}

// FinishCollect records the collect stage outcome and counters.
func (r *RunRepository) FinishCollect(ctx context.Context, date string, status model.StageStatus, errMsg string, counts model.CollectCounts) error {
	now := time.Now()
	return r.finishStage(ctx, date, model.StageCollect, map[string]interface{}{
		"collect_status":      status,
		"collect_finished_at": &now,
		"collect_error":       errMsg,
		"articles_fetched":    counts.Fetched,
		"articles_new":        counts.New,
		"articles_duplicate":  counts.Duplicate,
	})
}

// FinishProcess records the process stage outcome and counters.
func (r *RunRepository) FinishProcess(ctx context.Context, date string, status model.StageStatus, errMsg string, counts model.ProcessCounts) error {
	now := time.Now()
	return r.finishStage(ctx, date, model.StageProcess, map[string]interface{}{
		"process_status":      status,
		"process_finished_at": &now,
		"process_error":       errMsg,
		"articles_summarized": counts.Summarized,
		"summarize_failures":  counts.Failed,
		"process_skipped":     counts.Skipped,
	})
}

// FinishSend records the send stage outcome and counters.
func (r *RunRepository) FinishSend(ctx context.Context, date string, status model.StageStatus, errMsg string, counts model.SendCounts) error {
	now := time.Now()
	return r.finishStage(ctx, date, model.StageSend, map[string]interface{}{
		"send_status":      status,
		"send_finished_at": &now,
		"send_error":       errMsg,
		"emails_sent":      counts.Sent,
		"emails_failed":    counts.Failed,
		"emails_skipped":   counts.Skipped,
	})
}

// finishStage writes the terminal stage state, guarded on in_progress so
// a stale invocation that was taken over cannot clobber the successor's
// result.
func (r *RunRepository) finishStage(ctx context.Context, date string, stage model.Stage, updates map[string]interface{}) error {
	statusCol, _, _, _ := stageColumns(stage)
	result := r.db.WithContext(ctx).
		Model(&model.DailyRun{}).
		Where("run_date = ? AND "+statusCol+" = ?", date, model.StageInProgress).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to finish %s stage: %w", stage, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("finish %s stage for %s: %w", stage, date, ErrStageConflict)
	}
	return nil
}

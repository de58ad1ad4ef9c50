package model

import "time"

// DateLayout is the canonical run-date format used as the DailyRun key.
const DateLayout = "2006-01-02"

// DateOf formats t as a run date.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// Stage names one of the three pipeline stages.
type Stage string

const (
	StageCollect Stage = "collect"
	StageProcess Stage = "process"
	StageSend    Stage = "send"
)

// StageStatus is the lifecycle state of a single stage within a DailyRun.
// Transitions are monotonic forward, except failed -> in_progress on a
// manual retry and done -> in_progress under an explicit force.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageDone       StageStatus = "done"
	StageFailed     StageStatus = "failed"
)

// CollectCounts aggregates one collect stage attempt.
type CollectCounts struct {
	Fetched   int `json:"fetched"`
	New       int `json:"new"`
	Duplicate int `json:"duplicate"`
}

// ProcessCounts aggregates one process stage attempt. Skipped counts
// articles in the day's window that were already summarized earlier.
type ProcessCounts struct {
	Summarized int `json:"summarized"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped_already_done"`
}

// SendCounts aggregates one send stage attempt. Skipped counts
// subscribers that already hold a terminal delivery record for the date.
type SendCounts struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// DailyRun is the per-calendar-date record of pipeline progress. It is
// created lazily on the first stage invocation for a date, updated after
// every stage attempt, and never deleted (it doubles as the audit log).
type DailyRun struct {
	ID      uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	RunDate string `json:"run_date" gorm:"type:varchar(10);not null;uniqueIndex"`

	CollectStatus     StageStatus `json:"collect_status" gorm:"type:varchar(20);not null;default:'pending'"`
	CollectStartedAt  *time.Time  `json:"collect_started_at,omitempty"`
	CollectFinishedAt *time.Time  `json:"collect_finished_at,omitempty"`
	CollectError      string      `json:"collect_error,omitempty" gorm:"type:text"`

	ProcessStatus     StageStatus `json:"process_status" gorm:"type:varchar(20);not null;default:'pending'"`
	ProcessStartedAt  *time.Time  `json:"process_started_at,omitempty"`
	ProcessFinishedAt *time.Time  `json:"process_finished_at,omitempty"`
	ProcessError      string      `json:"process_error,omitempty" gorm:"type:text"`

	SendStatus     StageStatus `json:"send_status" gorm:"type:varchar(20);not null;default:'pending'"`
	SendStartedAt  *time.Time  `json:"send_started_at,omitempty"`
	SendFinishedAt *time.Time  `json:"send_finished_at,omitempty"`
	SendError      string      `json:"send_error,omitempty" gorm:"type:text"`

	ArticlesFetched    int `json:"articles_fetched"`
	ArticlesNew        int `json:"articles_new"`
	ArticlesDuplicate  int `json:"articles_duplicate"`
	ArticlesSummarized int `json:"articles_summarized"`
	SummarizeFailures  int `json:"summarize_failures"`
	ProcessSkipped     int `json:"process_skipped"`
	EmailsSent         int `json:"emails_sent"`
	EmailsFailed       int `json:"emails_failed"`
	EmailsSkipped      int `json:"emails_skipped"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for DailyRun
func (DailyRun) TableName() string {
	return "daily_runs"
}

// StatusOf returns the status of the named stage.
func (r *DailyRun) StatusOf(stage Stage) StageStatus {
	switch stage {
	case StageCollect:
		return r.CollectStatus
	case StageProcess:
		return r.ProcessStatus
	case StageSend:
		return r.SendStatus
	}
	return ""
}

// CollectCounts returns the recorded collect stage counters.
func (r *DailyRun) CollectCounts() CollectCounts {
	return CollectCounts{Fetched: r.ArticlesFetched, New: r.ArticlesNew, Duplicate: r.ArticlesDuplicate}
}

// ProcessCounts returns the recorded process stage counters.
func (r *DailyRun) ProcessCounts() ProcessCounts {
	return ProcessCounts{Summarized: r.ArticlesSummarized, Failed: r.SummarizeFailures, Skipped: r.ProcessSkipped}
}

// SendCounts returns the recorded send stage counters.
func (r *DailyRun) SendCounts() SendCounts {
	return SendCounts{Sent: r.EmailsSent, Failed: r.EmailsFailed, Skipped: r.EmailsSkipped}
}

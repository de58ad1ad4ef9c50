package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	StageRuns         *prometheus.CounterVec
	ArticlesFetched   prometheus.Counter
	ArticlesNew       prometheus.Counter
	ArticlesDuplicate prometheus.Counter
	SummariesCreated  prometheus.Counter
	SummaryFailures   prometheus.Counter
	EmailsSent        prometheus.Counter
	EmailsFailed      prometheus.Counter
	StageDuration     *prometheus.HistogramVec
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		StageRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthpulse_stage_runs_total",
			Help: "Pipeline stage executions by stage and outcome",
		}, []string{"stage", "outcome"}),
		ArticlesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthpulse_articles_fetched_total",
			Help: "Total number of articles fetched from the search API",
		}),
		ArticlesNew: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthpulse_articles_new_total",
			Help: "Total number of newly stored articles",
		}),
		ArticlesDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthpulse_articles_duplicate_total",
			Help: "Total number of articles discarded as duplicates",
		}),
		SummariesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthpulse_summaries_created_total",
			Help: "Total number of article summaries produced",
		}),
		SummaryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthpulse_summary_failures_total",
			Help: "Total number of failed summarization attempts",
		}),
		EmailsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthpulse_emails_sent_total",
			Help: "Total number of digest emails delivered",
		}),
		EmailsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthpulse_emails_failed_total",
			Help: "Total number of digest emails that failed delivery",
		}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healthpulse_stage_duration_seconds",
			Help:    "Time spent executing each pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

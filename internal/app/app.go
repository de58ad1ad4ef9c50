// Package app wires the pipeline together and runs it either as a
// long-lived service or as a one-shot CLI invocation.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/bluevlad/HealthPulse/internal/classify"
	"github.com/bluevlad/HealthPulse/internal/collector"
	"github.com/bluevlad/HealthPulse/internal/config"
	"github.com/bluevlad/HealthPulse/internal/database"
	"github.com/bluevlad/HealthPulse/internal/digest"
	"github.com/bluevlad/HealthPulse/internal/handler"
	"github.com/bluevlad/HealthPulse/internal/mailer"
	"github.com/bluevlad/HealthPulse/internal/metrics"
	"github.com/bluevlad/HealthPulse/internal/model"
	"github.com/bluevlad/HealthPulse/internal/pipeline"
	"github.com/bluevlad/HealthPulse/internal/processor"
	"github.com/bluevlad/HealthPulse/internal/repository"
	"github.com/bluevlad/HealthPulse/internal/scheduler"
	"github.com/bluevlad/HealthPulse/internal/search"
	"github.com/bluevlad/HealthPulse/internal/server"
	"github.com/bluevlad/HealthPulse/internal/summarize"
)

// Mode selects what a process invocation does.
type Mode string

const (
	ModeServe       Mode = "serve"
	ModeRunOnce     Mode = "run-once"
	ModeCollectOnly Mode = "collect-only"
	ModeProcessOnly Mode = "process-only"
	ModeSendOnly    Mode = "send-only"
)

// Options control a single invocation.
type Options struct {
	Mode  Mode
	Date  string
	Force bool
}

// components holds everything the serve and one-shot paths share.
type components struct {
	cfg          *config.Config
	db           *gorm.DB
	orchestrator *pipeline.Orchestrator
	runs         *repository.RunRepository
	articles     *repository.ArticleRepository
	subscribers  *repository.SubscriberRepository
	deliveries   *repository.DeliveryRepository
}

// Run initializes the application and executes the selected mode.
func Run(opts Options) error {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	logrus.Info("Starting HealthPulse")

	c, err := build(cfg)
	if err != nil {
		return err
	}

	date := opts.Date
	if date == "" {
		date = model.DateOf(time.Now())
	}

	ctx := context.Background()
	switch opts.Mode {
	case ModeServe, "":
		return c.serve()
	case ModeRunOnce:
		return reportResults(c.orchestrator.RunOnce(ctx, date, opts.Force))
	case ModeCollectOnly:
		return reportResults([]pipeline.RunResult{c.orchestrator.RunCollect(ctx, date, opts.Force)})
	case ModeProcessOnly:
		return reportResults([]pipeline.RunResult{c.orchestrator.RunProcess(ctx, date, opts.Force)})
	case ModeSendOnly:
		return reportResults([]pipeline.RunResult{c.orchestrator.RunSend(ctx, date, opts.Force)})
	}
	return fmt.Errorf("unknown mode %q", opts.Mode)
}

// build constructs the full dependency graph.
func build(cfg *config.Config) (*components, error) {
	db, err := database.Init(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.NewMetrics()

	articles := repository.NewArticleRepository(db)
	runs := repository.NewRunRepository(db, cfg.Pipeline.StaleAfter)
	subscribers := repository.NewSubscriberRepository(db)
	deliveries := repository.NewDeliveryRepository(db)

	searchClient := search.NewClient(cfg.Naver)
	summarizer := summarize.NewOpenAISummarizer(cfg.OpenAI)
	classifier := classify.New()

	coll := collector.New(searchClient, articles, cfg.Naver, cfg.Pipeline)
	proc := processor.New(articles, summarizer, classifier, cfg.Pipeline, cfg.OpenAI)
	builder := digest.NewBuilder(articles)
	transport := mailer.NewSMTPTransport(cfg.SMTP)
	sender := mailer.New(subscribers, deliveries, transport, cfg.Pipeline)

	return &components{
		cfg:          cfg,
		db:           db,
		orchestrator: pipeline.New(runs, coll, proc, builder, sender, m),
		runs:         runs,
		articles:     articles,
		subscribers:  subscribers,
		deliveries:   deliveries,
	}, nil
}

// serve runs the scheduler and the HTTP API until interrupted.
func (c *components) serve() error {
	sched := scheduler.NewScheduler(&c.cfg.Scheduler, c.orchestrator)

	h := handler.NewHandlers(c.db, c.orchestrator, sched, c.runs, c.articles, c.subscribers, c.deliveries)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + c.cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  c.cfg.Server.ReadTimeout,
		WriteTimeout: c.cfg.Server.WriteTimeout,
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", c.cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

// reportResults prints stage results to stdout and maps any failure to
// a non-zero exit.
func reportResults(results []pipeline.RunResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}
	for _, result := range results {
		if result.Outcome == pipeline.OutcomeFailed {
			return fmt.Errorf("%s stage failed: %s", result.Stage, result.Error)
		}
	}
	return nil
}

package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/bluevlad/HealthPulse/internal/pipeline"
	"github.com/bluevlad/HealthPulse/internal/repository"
	"github.com/bluevlad/HealthPulse/internal/scheduler"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db           *gorm.DB
	orchestrator *pipeline.Orchestrator
	scheduler    *scheduler.Scheduler
	runs         *repository.RunRepository
	articles     *repository.ArticleRepository
	subscribers  *repository.SubscriberRepository
	deliveries   *repository.DeliveryRepository
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, o *pipeline.Orchestrator, s *scheduler.Scheduler, runs *repository.RunRepository, articles *repository.ArticleRepository, subscribers *repository.SubscriberRepository, deliveries *repository.DeliveryRepository) *Handlers {
	return &Handlers{
		db:           db,
		orchestrator: o,
		scheduler:    s,
		runs:         runs,
		articles:     articles,
		subscribers:  subscribers,
		deliveries:   deliveries,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/unsubscribe/:token", h.Unsubscribe)

	api := router.Group("/api/v1")
	{
		api.POST("/pipeline/collect", h.RunCollect)
		api.POST("/pipeline/process", h.RunProcess)
		api.POST("/pipeline/send", h.RunSend)
		api.POST("/pipeline/run", h.RunPipeline)
		api.GET("/pipeline/runs", h.GetRuns)
		api.GET("/pipeline/runs/:date", h.GetRun)
		api.GET("/pipeline/runs/:date/deliveries", h.GetDeliveries)

		api.GET("/articles", h.GetArticles)

		api.GET("/subscribers", h.GetSubscribers)
		api.POST("/subscribers", h.CreateSubscriber)
		api.GET("/subscribers/:id", h.GetSubscriber)
		api.DELETE("/subscribers/:id", h.DeleteSubscriber)
		api.PATCH("/subscribers/:id/activate", h.ActivateSubscriber)
		api.PATCH("/subscribers/:id/deactivate", h.DeactivateSubscriber)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Details:   make(map[string]string),
	}

	if err := h.db.Raw("SELECT 1").Error; err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler.IsRunning() {
		response.Details["scheduler"] = "running"
		response.Details["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
		response.Details["last_run"] = h.scheduler.GetLastRun().Format(time.RFC3339)
	} else {
		response.Details["scheduler"] = "stopped"
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

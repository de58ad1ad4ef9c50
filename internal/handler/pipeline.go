package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bluevlad/HealthPulse/internal/model"
	"github.com/bluevlad/HealthPulse/internal/pipeline"
)

// runParams pulls the date and force query parameters shared by all
// manual stage triggers. The date defaults to today.
func runParams(c *gin.Context) (date string, force bool) {
	date = c.DefaultQuery("date", model.DateOf(time.Now()))
	force = c.Query("force") == "true"
	return date, force
}

func respondStageResult(c *gin.Context, result pipeline.RunResult) {
	switch {
	case pipeline.IsAlreadyRunning(result):
		c.JSON(http.StatusConflict, result)
	case result.Outcome == pipeline.OutcomeFailed:
		c.JSON(http.StatusInternalServerError, result)
	case result.Outcome == pipeline.OutcomePrerequisiteNotMet:
		c.JSON(http.StatusConflict, result)
	default:
		c.JSON(http.StatusOK, result)
	}
}

// RunCollect triggers the collect stage
func (h *Handlers) RunCollect(c *gin.Context) {
	date, force := runParams(c)
	respondStageResult(c, h.orchestrator.RunCollect(c.Request.Context(), date, force))
}

// RunProcess triggers the process stage
func (h *Handlers) RunProcess(c *gin.Context) {
	date, force := runParams(c)
	respondStageResult(c, h.orchestrator.RunProcess(c.Request.Context(), date, force))
}

// RunSend triggers the send stage
func (h *Handlers) RunSend(c *gin.Context) {
	date, force := runParams(c)
	respondStageResult(c, h.orchestrator.RunSend(c.Request.Context(), date, force))
}

// RunPipeline triggers the full collect-process-send sequence
func (h *Handlers) RunPipeline(c *gin.Context) {
	date, force := runParams(c)
	results := h.orchestrator.RunOnce(c.Request.Context(), date, force)

	status := http.StatusOK
	for _, result := range results {
		if result.Outcome == pipeline.OutcomeFailed {
			status = http.StatusInternalServerError
			break
		}
	}
	c.JSON(status, gin.H{"date": date, "results": results})
}

// GetRun returns the DailyRun for a date
func (h *Handlers) GetRun(c *gin.Context) {
	date := c.Param("date")
	run, err := h.orchestrator.GetRunStatus(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_date", Message: err.Error(), Code: http.StatusBadRequest})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "No run for date " + date, Code: http.StatusNotFound})
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetRuns returns recent DailyRuns
func (h *Handlers) GetRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	runs, err := h.runs.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to fetch runs", Code: http.StatusInternalServerError})
		return
	}
	c.JSON(http.StatusOK, runs)
}

// GetDeliveries returns the per-subscriber delivery records for a date
func (h *Handlers) GetDeliveries(c *gin.Context) {
	date := c.Param("date")
	records, err := h.deliveries.ListByDate(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to fetch delivery records", Code: http.StatusInternalServerError})
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetArticles returns collected articles, filterable by date and status
func (h *Handlers) GetArticles(c *gin.Context) {
	status := model.ArticleStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_status", Message: "Unknown article status", Code: http.StatusBadRequest})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	articles, err := h.articles.List(c.Request.Context(), c.Query("date"), status, limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error(), Code: http.StatusBadRequest})
		return
	}
	c.JSON(http.StatusOK, articles)
}

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bluevlad/HealthPulse/internal/model"
)

// GetSubscribers returns all subscribers
func (h *Handlers) GetSubscribers(c *gin.Context) {
	subscribers, err := h.subscribers.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to fetch subscribers", Code: http.StatusInternalServerError})
		return
	}
	c.JSON(http.StatusOK, subscribers)
}

// CreateSubscriber registers a new digest recipient
func (h *Handlers) CreateSubscriber(c *gin.Context) {
	var req SubscriberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "Invalid request body", Code: http.StatusBadRequest})
		return
	}

	subscriber := model.Subscriber{
		Email:  req.Email,
		Name:   req.Name,
		Active: true,
	}
	if err := h.subscribers.Create(c.Request.Context(), &subscriber); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to create subscriber", Code: http.StatusInternalServerError})
		return
	}
	c.JSON(http.StatusCreated, subscriber)
}

// GetSubscriber returns a single subscriber by ID
func (h *Handlers) GetSubscriber(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id", Message: "Invalid subscriber ID", Code: http.StatusBadRequest})
		return
	}
	subscriber, err := h.subscribers.Get(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to fetch subscriber", Code: http.StatusInternalServerError})
		return
	}
	if subscriber == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Subscriber not found", Code: http.StatusNotFound})
		return
	}
	c.JSON(http.StatusOK, subscriber)
}

// DeleteSubscriber removes a subscriber by ID
func (h *Handlers) DeleteSubscriber(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id", Message: "Invalid subscriber ID", Code: http.StatusBadRequest})
		return
	}
	if err := h.subscribers.Delete(c.Request.Context(), uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Subscriber not found", Code: http.StatusNotFound})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to delete subscriber", Code: http.StatusInternalServerError})
		return
	}
	c.Status(http.StatusNoContent)
}

// ActivateSubscriber re-enables digest delivery for a subscriber
func (h *Handlers) ActivateSubscriber(c *gin.Context) {
	h.setSubscriberActive(c, true)
}

// DeactivateSubscriber disables digest delivery for a subscriber
func (h *Handlers) DeactivateSubscriber(c *gin.Context) {
	h.setSubscriberActive(c, false)
}

func (h *Handlers) setSubscriberActive(c *gin.Context, active bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id", Message: "Invalid subscriber ID", Code: http.StatusBadRequest})
		return
	}
	if err := h.subscribers.SetActive(c.Request.Context(), uint(id), active); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Subscriber not found", Code: http.StatusNotFound})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to update subscriber", Code: http.StatusInternalServerError})
		return
	}
	c.Status(http.StatusNoContent)
}

// Unsubscribe deactivates the subscriber holding the emailed token. It
// answers a plain page because the link lands in a mail client.
func (h *Handlers) Unsubscribe(c *gin.Context) {
	ok, err := h.subscribers.DeactivateByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		c.String(http.StatusInternalServerError, "Something went wrong, please try again later.")
		return
	}
	if !ok {
		c.String(http.StatusNotFound, "Unknown unsubscribe link.")
		return
	}
	c.String(http.StatusOK, "You have been unsubscribed from the HealthPulse daily briefing.")
}

package handler

import "time"

// ErrorResponse is the uniform error body
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse is the health check body
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Details   map[string]string `json:"details"`
}

// SubscriberRequest is the create subscriber body
type SubscriberRequest struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name"`
}

package models

import "time"

// SessionReport is the output contract handed to report renderers: session
// metadata, totals and per-page detail.
type SessionReport struct {
	Session     Session      `json:"session"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	StopReason  string       `json:"stop_reason,omitempty"`
	TotalPages  int          `json:"total_pages"`
	TotalPassed int          `json:"total_passed"`
	TotalFailed int          `json:"total_failed"`
	Pages       []PageReport `json:"pages"`
}

// PageReport is the serialized form of a PageResult.
type PageReport struct {
	URL        string        `json:"url"`
	Title      string        `json:"title,omitempty"`
	Depth      int           `json:"depth"`
	Screenshot string        `json:"screenshot,omitempty"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Checks     []CheckRecord `json:"checks"`
}

// SessionResponse is the immediate response for POST /api/v1/sessions.
type SessionResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// SessionStatusResponse is the response for GET /api/v1/sessions/:id.
type SessionStatusResponse struct {
	ID     string         `json:"id"`
	Status string         `json:"status"` // "processing", "completed", "stopped", "failed"
	Report *SessionReport `json:"report,omitempty"`
	Error  *ErrorDetail   `json:"error,omitempty"`
}

// ErrorResponse is the body of every API error outside the session payloads.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status         string `json:"status"` // "healthy" or "degraded"
	Uptime         string `json:"uptime"`
	ActiveSessions int    `json:"active_sessions"`
	MaxSessions    int    `json:"max_sessions"`
	Version        string `json:"version"`
}

// Session job statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusStopped    = "stopped"
	StatusFailed     = "failed"
)

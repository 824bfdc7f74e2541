package dtos

import (
	"time"

	"github.com/jgirmay/FORGE_GO/internal/preview"
)

// StartPreviewRequest represents a request to start a preview session
type StartPreviewRequest struct {
	ProjectDir string `json:"project_dir" binding:"required"`
	SessionID  string `json:"session_id"`
}

// LogEntryDTO is one captured output line in API responses
type LogEntryDTO struct {
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"`
	Line      string    `json:"line"`
}

// PreviewResponse represents a start/restart outcome
type PreviewResponse struct {
	SessionID   string        `json:"session_id"`
	Status      string        `json:"status"`
	ProjectType string        `json:"project_type,omitempty"`
	URL         string        `json:"url,omitempty"`
	PID         int           `json:"pid,omitempty"`
	Message     string        `json:"message"`
	Logs        []LogEntryDTO `json:"logs"`
}

// StatusResponse represents a session status query result
type StatusResponse struct {
	SessionID       string        `json:"session_id"`
	Running         bool          `json:"running"`
	Status          string        `json:"status,omitempty"`
	ProjectType     string        `json:"project_type,omitempty"`
	ProjectDir      string        `json:"project_dir,omitempty"`
	URL             string        `json:"url,omitempty"`
	PID             int           `json:"pid,omitempty"`
	ExitCode        *int          `json:"exit_code,omitempty"`
	DurationSeconds float64       `json:"duration_seconds,omitempty"`
	Logs            []LogEntryDTO `json:"logs"`
}

// StopResponse represents a stop outcome
type StopResponse struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error      string    `json:"error"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Timestamp  time.Time `json:"timestamp"`
}

// Converters

// LogEntriesToDTO maps captured log entries to their API form
func LogEntriesToDTO(entries []preview.LogEntry) []LogEntryDTO {
	out := make([]LogEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = LogEntryDTO{Timestamp: e.Timestamp, Stream: e.Stream, Line: e.Line}
	}
	return out
}

// StartResultToResponse maps a registry start result to its API form
func StartResultToResponse(res *preview.StartResult) PreviewResponse {
	return PreviewResponse{
		SessionID:   res.SessionID,
		Status:      string(res.Status),
		ProjectType: string(res.ProjectType),
		URL:         res.URL,
		PID:         res.PID,
		Message:     res.Message,
		Logs:        LogEntriesToDTO(res.Logs),
	}
}

// StatusResultToResponse maps a registry status result to its API form
func StatusResultToResponse(res *preview.StatusResult) StatusResponse {
	return StatusResponse{
		SessionID:       res.SessionID,
		Running:         res.Running,
		Status:          string(res.Status),
		ProjectType:     string(res.ProjectType),
		ProjectDir:      res.ProjectDir,
		URL:             res.URL,
		PID:             res.PID,
		ExitCode:        res.ExitCode,
		DurationSeconds: res.Duration.Seconds(),
		Logs:            LogEntriesToDTO(res.Logs),
	}
}

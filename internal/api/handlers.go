package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jgirmay/FORGE_GO/internal/api/dtos"
	"github.com/jgirmay/FORGE_GO/internal/preview"
)

// PreviewHandler handles preview session HTTP requests
type PreviewHandler struct {
	registry *preview.Registry
}

// NewPreviewHandler creates a new preview handler
func NewPreviewHandler(registry *preview.Registry) *PreviewHandler {
	return &PreviewHandler{registry: registry}
}

// RegisterRoutes registers preview session routes
func (h *PreviewHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/sessions")
	{
		sessions.POST("", h.StartPreview)
		sessions.GET("", h.ListSessions)
		sessions.GET("/:sessionID", h.GetStatus)
		sessions.POST("/:sessionID/stop", h.StopPreview)
		sessions.POST("/:sessionID/restart", h.RestartPreview)
		sessions.GET("/:sessionID/logs/stream", h.StreamLogs)
	}
}

// StartPreview launches a preview for a generated project directory.
// Starting a session that is already running stops the previous
// process first.
func (h *PreviewHandler) StartPreview(c *gin.Context) {
	var req dtos.StartPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dtos.ErrorResponse{
			Error:      "invalid_request",
			Message:    err.Error(),
			StatusCode: http.StatusBadRequest,
			Timestamp:  time.Now(),
		})
		return
	}

	res, err := h.registry.Start(c.Request.Context(), req.ProjectDir, req.SessionID)
	if err != nil {
		// Startup failures still carry the captured logs so the caller
		// can display diagnostic output.
		c.JSON(http.StatusUnprocessableEntity, dtos.StartResultToResponse(res))
		return
	}

	c.JSON(http.StatusOK, dtos.StartResultToResponse(res))
}

// ListSessions reports the status of every tracked session
func (h *PreviewHandler) ListSessions(c *gin.Context) {
	results := h.registry.List()
	out := make([]dtos.StatusResponse, 0, len(results))
	for _, res := range results {
		out = append(out, dtos.StatusResultToResponse(res))
	}
	c.JSON(http.StatusOK, out)
}

// GetStatus reports the current status, URL and recent logs of a session
func (h *PreviewHandler) GetStatus(c *gin.Context) {
	res := h.registry.Status(c.Param("sessionID"))
	c.JSON(http.StatusOK, dtos.StatusResultToResponse(res))
}

// StopPreview terminates a session's process. Stopping an unknown
// session is not an error.
func (h *PreviewHandler) StopPreview(c *gin.Context) {
	res := h.registry.Stop(c.Param("sessionID"))
	c.JSON(http.StatusOK, dtos.StopResponse{Stopped: res.Stopped, Message: res.Message})
}

// RestartPreview stops and starts a session on its own directory
func (h *PreviewHandler) RestartPreview(c *gin.Context) {
	sessionID := c.Param("sessionID")
	res, err := h.registry.Restart(c.Request.Context(), sessionID)
	if err != nil && res == nil {
		c.JSON(http.StatusNotFound, dtos.ErrorResponse{
			Error:      "unknown_session",
			Message:    err.Error(),
			StatusCode: http.StatusNotFound,
			Timestamp:  time.Now(),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, dtos.StartResultToResponse(res))
		return
	}
	c.JSON(http.StatusOK, dtos.StartResultToResponse(res))
}

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jgirmay/FORGE_GO/internal/api/dtos"
	"github.com/jgirmay/FORGE_GO/pkg/logging"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The preview API is consumed by the local generation UI; origin
	// enforcement belongs to the outer gateway.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	logPollInterval = 500 * time.Millisecond
	writeWait       = 10 * time.Second
)

// StreamLogs upgrades the connection and forwards new log entries for
// the session as they are appended. The stream ends when the client
// disconnects; it survives process exit so late failure output is still
// delivered.
func (h *PreviewHandler) StreamLogs(c *gin.Context) {
	sessionID := c.Param("sessionID")

	s := h.registry.Session(sessionID)
	if s == nil {
		c.JSON(http.StatusNotFound, dtos.ErrorResponse{
			Error:      "unknown_session",
			Message:    "no session with id " + sessionID,
			StatusCode: http.StatusNotFound,
			Timestamp:  time.Now(),
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer conn.Close()

	// Reader goroutine: we never expect client messages, but reading
	// is what detects the close handshake.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(logPollInterval)
	defer ticker.Stop()

	seq := 0
	for {
		entries, next := s.Logs().Since(seq)
		seq = next
		for _, entry := range entries {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(dtos.LogEntryDTO{
				Timestamp: entry.Timestamp,
				Stream:    entry.Stream,
				Line:      entry.Line,
			}); err != nil {
				return
			}
		}

		select {
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}

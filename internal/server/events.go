package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smartnotes-ai/backend/internal/models"
	"go.uber.org/zap"
)

type enhancementEventPayload struct {
	NoteID        uint64                   `json:"note_id"`
	EnhancementID uint64                   `json:"enhancement_id"`
	Version       int64                    `json:"version"`
	Status        models.EnhancementStatus `json:"status"`
	IsCurrent     bool                     `json:"is_current"`
	Timestamp     string                   `json:"timestamp"`
	Source        string                   `json:"source"`
}

type heartbeatEventPayload struct {
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// handleEvents streams enhancement transitions of the caller's notes as Server-Sent Events.
func (h *httpHandler) handleEvents(c *gin.Context) {
	user, _ := currentUser(c)
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, user.ID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	logger := h.requestLogger(c)
	logger.Debug("realtime stream opened", zap.Uint64("user_id", user.ID))
	defer logger.Debug("realtime stream closed", zap.Uint64("user_id", user.ID))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, enhancementEventPayload{
				NoteID:        message.NoteID,
				EnhancementID: message.EnhancementID,
				Version:       message.Version,
				Status:        message.Status,
				IsCurrent:     message.IsCurrent,
				Timestamp:     message.Timestamp.Format(time.RFC3339Nano),
				Source:        realtimeSourceBackend,
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatEventPayload{
				Timestamp: tick.UTC().Format(time.RFC3339Nano),
				Source:    realtimeSourceBackend,
			})
			return true
		}
	})
}

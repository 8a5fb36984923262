package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smartnotes-ai/backend/internal/enhancements"
	"github.com/smartnotes-ai/backend/internal/models"
	"go.uber.org/zap"
)

type enhancementRequestPayload struct {
	EnhancementType string `json:"enhancement_type"`
	OriginalURL     string `json:"original_url"`
}

type completionRequestPayload struct {
	EnhancedURL      string         `json:"enhanced_url"`
	ProcessingTimeMS *int64         `json:"processing_time_ms"`
	ModelVersion     *string        `json:"model_version"`
	Metadata         map[string]any `json:"metadata"`
}

type failureRequestPayload struct {
	Reason string `json:"reason"`
}

type enhancementsResponsePayload struct {
	Enhancements []models.Enhancement `json:"enhancements"`
}

type currentEnhancementPayload struct {
	Enhancement *models.Enhancement `json:"enhancement"`
}

func (h *httpHandler) handleRequestEnhancement(c *gin.Context) {
	user, _ := currentUser(c)
	noteID, ok := pathID(c)
	if !ok {
		return
	}
	var request enhancementRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "request.invalid_body")
		return
	}
	enhancementType, err := models.ParseEnhancementType(request.EnhancementType)
	if err != nil {
		badRequest(c, "request.invalid_enhancement_type")
		return
	}
	if err := h.notes.AuthorizeNote(c.Request.Context(), user.ID, noteID); err != nil {
		h.respondError(c, err)
		return
	}
	enhancement, err := h.ledger.RequestEnhancement(c.Request.Context(), noteID, enhancementType, request.OriginalURL)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(user.ID, enhancement)
	c.JSON(http.StatusCreated, enhancement)
}

func (h *httpHandler) handleEnhancementHistory(c *gin.Context) {
	user, _ := currentUser(c)
	noteID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.notes.AuthorizeNote(c.Request.Context(), user.ID, noteID); err != nil {
		h.respondError(c, err)
		return
	}
	history, err := h.ledger.History(c.Request.Context(), noteID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, enhancementsResponsePayload{Enhancements: history})
}

func (h *httpHandler) handleCurrentEnhancement(c *gin.Context) {
	user, _ := currentUser(c)
	noteID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.notes.AuthorizeNote(c.Request.Context(), user.ID, noteID); err != nil {
		h.respondError(c, err)
		return
	}
	current, err := h.ledger.CurrentEnhancement(c.Request.Context(), noteID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, currentEnhancementPayload{Enhancement: current})
}

func (h *httpHandler) handleListPending(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			badRequest(c, "request.invalid_limit")
			return
		}
		limit = parsed
	}
	pending, err := h.ledger.ListPending(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, enhancementsResponsePayload{Enhancements: pending})
}

func (h *httpHandler) handleBeginProcessing(c *gin.Context) {
	enhancementID, ok := pathID(c)
	if !ok {
		return
	}
	enhancement, err := h.ledger.BeginProcessing(c.Request.Context(), enhancementID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishToOwner(c.Request.Context(), enhancement)
	c.JSON(http.StatusOK, enhancement)
}

func (h *httpHandler) handleCompleteEnhancement(c *gin.Context) {
	enhancementID, ok := pathID(c)
	if !ok {
		return
	}
	var request completionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "request.invalid_body")
		return
	}
	enhancement, err := h.ledger.CompleteEnhancement(c.Request.Context(), enhancementID, enhancements.CompletionResult{
		EnhancedURL:      request.EnhancedURL,
		ProcessingTimeMS: request.ProcessingTimeMS,
		ModelVersion:     request.ModelVersion,
		Metadata:         request.Metadata,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishToOwner(c.Request.Context(), enhancement)
	c.JSON(http.StatusOK, enhancement)
}

func (h *httpHandler) handleFailEnhancement(c *gin.Context) {
	enhancementID, ok := pathID(c)
	if !ok {
		return
	}
	var request failureRequestPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			badRequest(c, "request.invalid_body")
			return
		}
	}
	enhancement, err := h.ledger.FailEnhancement(c.Request.Context(), enhancementID, request.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishToOwner(c.Request.Context(), enhancement)
	c.JSON(http.StatusOK, enhancement)
}

// publishToOwner resolves the note owner for worker-driven transitions. The transition
// has already committed, so lookup failures are logged and not reported to the worker.
func (h *httpHandler) publishToOwner(ctx context.Context, enhancement models.Enhancement) {
	if h.realtime == nil {
		return
	}
	ownerID, err := h.notes.OwnerOfNote(ctx, enhancement.NoteID)
	if err != nil {
		h.logger.Warn("realtime owner lookup failed",
			zap.Uint64("note_id", enhancement.NoteID),
			zap.Uint64("enhancement_id", enhancement.ID),
			zap.Error(err))
		return
	}
	h.publish(ownerID, enhancement)
}

func (h *httpHandler) publish(userID uint64, enhancement models.Enhancement) {
	if h.realtime == nil {
		return
	}
	h.realtime.Publish(enhancementMessage(userID, enhancement, h.clock()))
}

package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smartnotes-ai/backend/internal/models"
	"github.com/smartnotes-ai/backend/internal/notes"
	"go.uber.org/zap"
)

type notebookRequestPayload struct {
	Name       string `json:"name"`
	IsFavorite bool   `json:"is_favorite"`
}

type notebookUpdatePayload struct {
	Name       *string `json:"name"`
	IsArchived *bool   `json:"is_archived"`
	IsFavorite *bool   `json:"is_favorite"`
}

type noteRequestPayload struct {
	Title        string          `json:"title"`
	Content      *string         `json:"content"`
	StrokeData   json.RawMessage `json:"stroke_data"`
	ThumbnailURL *string         `json:"thumbnail_url"`
}

type strokesRequestPayload struct {
	StrokeData json.RawMessage `json:"stroke_data"`
}

type notebooksResponsePayload struct {
	Notebooks []models.Notebook `json:"notebooks"`
}

type notesResponsePayload struct {
	Notes []models.Note `json:"notes"`
}

// noteDetailPayload adds the stroke documents that list responses omit.
type noteDetailPayload struct {
	models.Note
	StrokeData         json.RawMessage `json:"stroke_data"`
	OriginalStrokeData json.RawMessage `json:"original_stroke_data"`
}

func newNoteDetail(note models.Note) noteDetailPayload {
	return noteDetailPayload{
		Note:               note,
		StrokeData:         rawJSON(note.StrokeData),
		OriginalStrokeData: rawJSON(note.OriginalStrokeData),
	}
}

func rawJSON(value *string) json.RawMessage {
	if value == nil || *value == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(*value)
}

func (h *httpHandler) handleCreateNotebook(c *gin.Context) {
	user, _ := currentUser(c)
	var request notebookRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "request.invalid_body")
		return
	}
	name, err := notes.NewNotebookName(request.Name)
	if err != nil {
		badRequest(c, "request.invalid_name")
		return
	}
	notebook, err := h.notes.CreateNotebook(c.Request.Context(), user.ID, notes.NotebookInput{Name: name, IsFavorite: request.IsFavorite})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, notebook)
}

func (h *httpHandler) handleListNotebooks(c *gin.Context) {
	user, _ := currentUser(c)
	notebooks, err := h.notes.ListNotebooks(c.Request.Context(), user.ID, queryBool(c, "include_archived"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, notebooksResponsePayload{Notebooks: notebooks})
}

func (h *httpHandler) handleUpdateNotebook(c *gin.Context) {
	user, _ := currentUser(c)
	notebookID, ok := pathID(c)
	if !ok {
		return
	}
	var request notebookUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "request.invalid_body")
		return
	}
	update := notes.NotebookUpdate{IsArchived: request.IsArchived, IsFavorite: request.IsFavorite}
	if request.Name != nil {
		name, err := notes.NewNotebookName(*request.Name)
		if err != nil {
			badRequest(c, "request.invalid_name")
			return
		}
		update.Name = &name
	}
	notebook, err := h.notes.UpdateNotebook(c.Request.Context(), user.ID, notebookID, update)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, notebook)
}

func (h *httpHandler) handleDeleteNotebook(c *gin.Context) {
	user, _ := currentUser(c)
	notebookID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.notes.DeleteNotebook(c.Request.Context(), user.ID, notebookID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	user, _ := currentUser(c)
	notebookID, ok := pathID(c)
	if !ok {
		return
	}
	var request noteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "request.invalid_body")
		return
	}
	title, err := notes.NewNoteTitle(request.Title)
	if err != nil {
		badRequest(c, "request.invalid_title")
		return
	}
	input := notes.NoteInput{Title: title, Content: request.Content, ThumbnailURL: request.ThumbnailURL}
	if len(request.StrokeData) > 0 && string(request.StrokeData) != "null" {
		strokes, err := notes.NewStrokeData(string(request.StrokeData))
		if err != nil {
			badRequest(c, "request.invalid_stroke_data")
			return
		}
		input.StrokeData = &strokes
	}
	note, err := h.notes.CreateNote(c.Request.Context(), user.ID, notebookID, input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newNoteDetail(note))
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	user, _ := currentUser(c)
	notebookID, ok := pathID(c)
	if !ok {
		return
	}
	list, err := h.notes.ListNotes(c.Request.Context(), user.ID, notebookID, queryBool(c, "include_archived"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, notesResponsePayload{Notes: list})
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	user, _ := currentUser(c)
	noteID, ok := pathID(c)
	if !ok {
		return
	}
	note, err := h.notes.GetNote(c.Request.Context(), user.ID, noteID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNoteDetail(note))
}

func (h *httpHandler) handleUpdateStrokes(c *gin.Context) {
	user, _ := currentUser(c)
	noteID, ok := pathID(c)
	if !ok {
		return
	}
	var request strokesRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "request.invalid_body")
		return
	}
	strokes, err := notes.NewStrokeData(string(request.StrokeData))
	if err != nil {
		badRequest(c, "request.invalid_stroke_data")
		return
	}
	note, err := h.notes.UpdateStrokeData(c.Request.Context(), user.ID, noteID, strokes)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNoteDetail(note))
}

// handleDeleteNote checks ownership, then lets the ledger remove the note with its history.
func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	user, _ := currentUser(c)
	noteID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.notes.AuthorizeNote(c.Request.Context(), user.ID, noteID); err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.ledger.DeleteNote(c.Request.Context(), noteID); err != nil {
		h.respondError(c, err)
		return
	}
	h.requestLogger(c).Info("note deleted", zap.Uint64("user_id", user.ID), zap.Uint64("note_id", noteID))
	c.Status(http.StatusNoContent)
}

package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxNameLength       = 200
	maxURLLength        = 500
	maxStrokeDataLength = 8 << 20
)

var (
	// ErrInvalidNotebookName indicates that a notebook name is empty or too long.
	ErrInvalidNotebookName = errors.New("notes: invalid notebook name")
	// ErrInvalidNoteTitle indicates that a note title is empty or too long.
	ErrInvalidNoteTitle = errors.New("notes: invalid note title")
	// ErrInvalidStrokeData indicates that stroke data is not a JSON document or is too large.
	ErrInvalidStrokeData = errors.New("notes: invalid stroke data")
	// ErrInvalidThumbnailURL indicates that a thumbnail url exceeds storage bounds.
	ErrInvalidThumbnailURL = errors.New("notes: invalid thumbnail url")
)

// NotebookName represents a validated notebook name.
type NotebookName string

// NewNotebookName validates raw input and returns a NotebookName.
func NewNotebookName(rawInput string) (NotebookName, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNotebookName)
	}
	if utf8.RuneCountInString(trimmed) > maxNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNotebookName, maxNameLength)
	}
	return NotebookName(trimmed), nil
}

// String returns the underlying name.
func (name NotebookName) String() string {
	return string(name)
}

// NoteTitle represents a validated note title.
type NoteTitle string

// NewNoteTitle validates raw input and returns a NoteTitle.
func NewNoteTitle(rawInput string) (NoteTitle, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteTitle)
	}
	if utf8.RuneCountInString(trimmed) > maxNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteTitle, maxNameLength)
	}
	return NoteTitle(trimmed), nil
}

// String returns the underlying title.
func (title NoteTitle) String() string {
	return string(title)
}

// StrokeData is a validated vector ink document. The service stores it opaquely.
type StrokeData string

// NewStrokeData checks that raw input is a JSON object or array within storage bounds.
func NewStrokeData(rawInput string) (StrokeData, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidStrokeData)
	}
	if len(trimmed) > maxStrokeDataLength {
		return "", fmt.Errorf("%w: exceeds %d bytes", ErrInvalidStrokeData, maxStrokeDataLength)
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return "", fmt.Errorf("%w: expected a json object or array", ErrInvalidStrokeData)
	}
	if !json.Valid([]byte(trimmed)) {
		return "", fmt.Errorf("%w: not a json document", ErrInvalidStrokeData)
	}
	return StrokeData(trimmed), nil
}

// String returns the raw JSON document.
func (data StrokeData) String() string {
	return string(data)
}

// NotebookInput describes a notebook to create.
type NotebookInput struct {
	Name       NotebookName
	IsFavorite bool
}

// NotebookUpdate lists the notebook fields to change; nil fields stay as they are.
type NotebookUpdate struct {
	Name       *NotebookName
	IsArchived *bool
	IsFavorite *bool
}

// Empty reports whether the update changes nothing.
func (update NotebookUpdate) Empty() bool {
	return update.Name == nil && update.IsArchived == nil && update.IsFavorite == nil
}

// NoteInput describes a note to create. StrokeData also becomes the immutable original.
type NoteInput struct {
	Title        NoteTitle
	Content      *string
	StrokeData   *StrokeData
	ThumbnailURL *string
}

func (input NoteInput) validate() error {
	if input.Title == "" {
		return fmt.Errorf("%w: empty", ErrInvalidNoteTitle)
	}
	if input.ThumbnailURL != nil && len(*input.ThumbnailURL) > maxURLLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidThumbnailURL, maxURLLength)
	}
	return nil
}

package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smartnotes-ai/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew        = "notes.service.new"
	opCreateNotebook    = "notes.create_notebook"
	opListNotebooks     = "notes.list_notebooks"
	opUpdateNotebook    = "notes.update_notebook"
	opDeleteNotebook    = "notes.delete_notebook"
	opCreateNote        = "notes.create_note"
	opListNotes         = "notes.list_notes"
	opGetNote           = "notes.get_note"
	opUpdateStrokeData  = "notes.update_stroke_data"
	opAuthorizeNote     = "notes.authorize_note"
	opOwnerOfNote       = "notes.owner_of_note"
	reasonNotFound      = "not_found"
	reasonInvalidInput  = "invalid_input"
	reasonQueryFailed   = "query_failed"
	reasonWriteFailed   = "write_failed"
	reasonMissingDB     = "missing_database"
	reasonTransactionKO = "transaction_failed"

	queryOwnedNotebook = "id = ? AND user_id = ?"
	queryOwnedNote     = "notes.id = ? AND notebooks.user_id = ?"
	joinNotebooks      = "JOIN notebooks ON notebooks.id = notes.notebook_id"
)

// ServiceConfig describes the dependencies of the notebook and note service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages notebooks and notes on behalf of their owners. Every lookup is
// scoped to the owning user, so a foreign resource is reported as not found.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, models.NewServiceError(opServiceNew, reasonMissingDB, models.ErrStorageUnavailable, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// CreateNotebook stores a new notebook for the user.
func (s *Service) CreateNotebook(ctx context.Context, userID uint64, input NotebookInput) (models.Notebook, error) {
	if _, err := NewNotebookName(input.Name.String()); err != nil {
		return models.Notebook{}, models.NewServiceError(opCreateNotebook, reasonInvalidInput, models.ErrInvalidArgument, err)
	}
	now := s.clock().UTC()
	notebook := models.Notebook{
		UserID:     userID,
		Name:       input.Name.String(),
		IsFavorite: input.IsFavorite,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&notebook).Error; err != nil {
		return models.Notebook{}, s.storageError(opCreateNotebook, reasonWriteFailed, err, zap.Uint64("user_id", userID))
	}
	return notebook, nil
}

// ListNotebooks returns the user's notebooks, favorites first, then most recently updated.
func (s *Service) ListNotebooks(ctx context.Context, userID uint64, includeArchived bool) ([]models.Notebook, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeArchived {
		query = query.Where("is_archived = ?", false)
	}
	notebooks := make([]models.Notebook, 0)
	if err := query.Order("is_favorite DESC, updated_at DESC, id DESC").Find(&notebooks).Error; err != nil {
		return nil, s.storageError(opListNotebooks, reasonQueryFailed, err, zap.Uint64("user_id", userID))
	}
	return notebooks, nil
}

// UpdateNotebook renames, archives or favorites a notebook.
func (s *Service) UpdateNotebook(ctx context.Context, userID, notebookID uint64, update NotebookUpdate) (models.Notebook, error) {
	if update.Empty() {
		return models.Notebook{}, models.NewServiceError(opUpdateNotebook, reasonInvalidInput, models.ErrInvalidArgument, errors.New("no fields to update"))
	}
	columns := map[string]any{"updated_at": s.clock().UTC()}
	if update.Name != nil {
		if _, err := NewNotebookName(update.Name.String()); err != nil {
			return models.Notebook{}, models.NewServiceError(opUpdateNotebook, reasonInvalidInput, models.ErrInvalidArgument, err)
		}
		columns["name"] = update.Name.String()
	}
	if update.IsArchived != nil {
		columns["is_archived"] = *update.IsArchived
	}
	if update.IsFavorite != nil {
		columns["is_favorite"] = *update.IsFavorite
	}

	var notebook models.Notebook
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Notebook{}).Where(queryOwnedNotebook, notebookID, userID).UpdateColumns(columns)
		if result.Error != nil {
			return s.storageError(opUpdateNotebook, reasonWriteFailed, result.Error, zap.Uint64("notebook_id", notebookID))
		}
		if result.RowsAffected == 0 {
			return notebookNotFound(opUpdateNotebook, notebookID)
		}
		if err := tx.Where("id = ?", notebookID).Take(&notebook).Error; err != nil {
			return s.storageError(opUpdateNotebook, reasonQueryFailed, err, zap.Uint64("notebook_id", notebookID))
		}
		return nil
	})
	if err != nil {
		return models.Notebook{}, s.transactionError(opUpdateNotebook, err)
	}
	return notebook, nil
}

// DeleteNotebook removes the notebook together with its notes and their enhancements.
func (s *Service) DeleteNotebook(ctx context.Context, userID, notebookID uint64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var notebook models.Notebook
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(queryOwnedNotebook, notebookID, userID).Take(&notebook).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notebookNotFound(opDeleteNotebook, notebookID)
		}
		if err != nil {
			return s.storageError(opDeleteNotebook, reasonQueryFailed, err, zap.Uint64("notebook_id", notebookID))
		}
		noteIDs := tx.Model(&models.Note{}).Select("id").Where("notebook_id = ?", notebookID)
		if err := tx.Where("note_id IN (?)", noteIDs).Delete(&models.Enhancement{}).Error; err != nil {
			return s.storageError(opDeleteNotebook, reasonWriteFailed, err, zap.Uint64("notebook_id", notebookID))
		}
		if err := tx.Where("notebook_id = ?", notebookID).Delete(&models.Note{}).Error; err != nil {
			return s.storageError(opDeleteNotebook, reasonWriteFailed, err, zap.Uint64("notebook_id", notebookID))
		}
		if err := tx.Where("id = ?", notebookID).Delete(&models.Notebook{}).Error; err != nil {
			return s.storageError(opDeleteNotebook, reasonWriteFailed, err, zap.Uint64("notebook_id", notebookID))
		}
		return nil
	})
	if err != nil {
		return s.transactionError(opDeleteNotebook, err)
	}
	s.logger.Info("notebook deleted", zap.Uint64("user_id", userID), zap.Uint64("notebook_id", notebookID))
	return nil
}

// CreateNote stores a note in one of the user's notebooks. The initial stroke data is
// also kept as the original snapshot, which no later call overwrites.
func (s *Service) CreateNote(ctx context.Context, userID, notebookID uint64, input NoteInput) (models.Note, error) {
	if err := input.validate(); err != nil {
		return models.Note{}, models.NewServiceError(opCreateNote, reasonInvalidInput, models.ErrInvalidArgument, err)
	}
	if err := s.ensureNotebookOwned(ctx, opCreateNote, userID, notebookID); err != nil {
		return models.Note{}, err
	}

	now := s.clock().UTC()
	note := models.Note{
		NotebookID:   notebookID,
		Title:        input.Title.String(),
		Content:      trimmedOrNil(input.Content),
		ThumbnailURL: trimmedOrNil(input.ThumbnailURL),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if input.StrokeData != nil {
		strokes := input.StrokeData.String()
		original := strokes
		note.StrokeData = &strokes
		note.OriginalStrokeData = &original
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		return models.Note{}, s.storageError(opCreateNote, reasonWriteFailed, err, zap.Uint64("notebook_id", notebookID))
	}
	return note, nil
}

// ListNotes returns the notes of one of the user's notebooks, most recently updated first.
func (s *Service) ListNotes(ctx context.Context, userID, notebookID uint64, includeArchived bool) ([]models.Note, error) {
	if err := s.ensureNotebookOwned(ctx, opListNotes, userID, notebookID); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Where("notebook_id = ?", notebookID)
	if !includeArchived {
		query = query.Where("is_archived = ?", false)
	}
	notes := make([]models.Note, 0)
	if err := query.Order("updated_at DESC, id DESC").Find(&notes).Error; err != nil {
		return nil, s.storageError(opListNotes, reasonQueryFailed, err, zap.Uint64("notebook_id", notebookID))
	}
	return notes, nil
}

// GetNote loads a note owned by the user.
func (s *Service) GetNote(ctx context.Context, userID, noteID uint64) (models.Note, error) {
	return s.ownedNote(ctx, opGetNote, userID, noteID)
}

// UpdateStrokeData replaces the working stroke data, for example after the user accepts
// an enhancement. The original stroke data is left untouched.
func (s *Service) UpdateStrokeData(ctx context.Context, userID, noteID uint64, strokes StrokeData) (models.Note, error) {
	if _, err := NewStrokeData(strokes.String()); err != nil {
		return models.Note{}, models.NewServiceError(opUpdateStrokeData, reasonInvalidInput, models.ErrInvalidArgument, err)
	}
	if _, err := s.ownedNote(ctx, opUpdateStrokeData, userID, noteID); err != nil {
		return models.Note{}, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Note{}).
		Where("id = ?", noteID).
		UpdateColumns(map[string]any{"stroke_data": strokes.String(), "updated_at": s.clock().UTC()}).Error; err != nil {
		return models.Note{}, s.storageError(opUpdateStrokeData, reasonWriteFailed, err, zap.Uint64("note_id", noteID))
	}
	return s.ownedNote(ctx, opUpdateStrokeData, userID, noteID)
}

// AuthorizeNote confirms that the note exists and belongs to the user.
func (s *Service) AuthorizeNote(ctx context.Context, userID, noteID uint64) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Note{}).
		Joins(joinNotebooks).
		Where(queryOwnedNote, noteID, userID).
		Count(&count).Error; err != nil {
		return s.storageError(opAuthorizeNote, reasonQueryFailed, err, zap.Uint64("note_id", noteID))
	}
	if count == 0 {
		return noteNotFound(opAuthorizeNote, noteID)
	}
	return nil
}

// OwnerOfNote returns the id of the user owning the note.
func (s *Service) OwnerOfNote(ctx context.Context, noteID uint64) (uint64, error) {
	var ownerID uint64
	result := s.db.WithContext(ctx).Model(&models.Note{}).
		Joins(joinNotebooks).
		Where("notes.id = ?", noteID).
		Select("notebooks.user_id").
		Limit(1).
		Scan(&ownerID)
	if result.Error != nil {
		return 0, s.storageError(opOwnerOfNote, reasonQueryFailed, result.Error, zap.Uint64("note_id", noteID))
	}
	if result.RowsAffected == 0 {
		return 0, noteNotFound(opOwnerOfNote, noteID)
	}
	return ownerID, nil
}

func (s *Service) ownedNote(ctx context.Context, operation string, userID, noteID uint64) (models.Note, error) {
	var note models.Note
	err := s.db.WithContext(ctx).
		Select("notes.*").
		Joins(joinNotebooks).
		Where(queryOwnedNote, noteID, userID).
		Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Note{}, noteNotFound(operation, noteID)
	}
	if err != nil {
		return models.Note{}, s.storageError(operation, reasonQueryFailed, err, zap.Uint64("note_id", noteID))
	}
	return note, nil
}

func (s *Service) ensureNotebookOwned(ctx context.Context, operation string, userID, notebookID uint64) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Notebook{}).
		Where(queryOwnedNotebook, notebookID, userID).
		Count(&count).Error; err != nil {
		return s.storageError(operation, reasonQueryFailed, err, zap.Uint64("notebook_id", notebookID))
	}
	if count == 0 {
		return notebookNotFound(operation, notebookID)
	}
	return nil
}

func notebookNotFound(operation string, notebookID uint64) error {
	return models.NewServiceError(operation, reasonNotFound, models.ErrNotFound, fmt.Errorf("notebook %d", notebookID))
}

func noteNotFound(operation string, noteID uint64) error {
	return models.NewServiceError(operation, reasonNotFound, models.ErrNotFound, fmt.Errorf("note %d", noteID))
}

func (s *Service) storageError(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return models.NewServiceError(operation, reason, models.ErrStorageUnavailable, err)
}

func (s *Service) transactionError(operation string, err error) error {
	var serviceErr *models.ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}
	return s.storageError(operation, reasonTransactionKO, err)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}

// trimmedOrNil normalizes optional text so blank input is stored as NULL.
func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

package enhancements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smartnotes-ai/backend/internal/database"
	"github.com/smartnotes-ai/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opLedgerNew           = "enhancements.ledger.new"
	opRequestEnhancement  = "enhancements.request_enhancement"
	opBeginProcessing     = "enhancements.begin_processing"
	opCompleteEnhancement = "enhancements.complete_enhancement"
	opFailEnhancement     = "enhancements.fail_enhancement"
	opCurrentEnhancement  = "enhancements.current_enhancement"
	opHistory             = "enhancements.history"
	opListPending         = "enhancements.list_pending"
	opDeleteNote          = "enhancements.delete_note"

	reasonMissingDatabase    = "missing_database"
	reasonInvalidType        = "invalid_type"
	reasonInvalidArgument    = "invalid_argument"
	reasonNoteNotFound       = "note_not_found"
	reasonNotFound           = "enhancement_not_found"
	reasonInvalidState       = "invalid_state"
	reasonVersionConflict    = "version_conflict"
	reasonCurrentConflict    = "current_conflict"
	reasonQueryFailed        = "query_failed"
	reasonInsertFailed       = "insert_failed"
	reasonUpdateFailed       = "update_failed"
	reasonDeleteFailed       = "delete_failed"
	reasonTransactionFailed  = "transaction_failed"
	metadataFailureReasonKey = "failure_reason"

	fieldNoteID        = "note_id"
	fieldEnhancementID = "enhancement_id"
	fieldVersion       = "version"
	fieldStatus        = "status"

	queryNoteID          = fieldNoteID + " = ?"
	queryID              = "id = ?"
	queryIDStatus        = "id = ? AND status = ?"
	queryOtherCurrent    = "note_id = ? AND is_current = ? AND id <> ?"
	orderVersionAsc      = "version ASC"
	orderQueue           = "created_at ASC, id ASC"
	maxURLLength         = 500
	maxModelVersionLen   = 64
	defaultVersionTries  = 3
	defaultPendingLimit  = 50
	maximumPendingLimit  = 500
	outcomeSucceeded     = "succeeded"
	outcomeRejected      = "rejected"
	outcomeStorageFailed = "storage_failed"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errVersionTaken    = errors.New("enhancement version already taken")
	noOpLogger         = zap.NewNop()
)

// Recorder receives ledger activity for metrics.
type Recorder interface {
	RecordTransition(operation, outcome string)
	RecordVersionRetry()
	ObserveProcessingTime(enhancementType models.EnhancementType, milliseconds int64)
}

type noopRecorder struct{}

func (noopRecorder) RecordTransition(string, string)                     {}
func (noopRecorder) RecordVersionRetry()                                 {}
func (noopRecorder) ObserveProcessingTime(models.EnhancementType, int64) {}

// LedgerConfig describes the dependencies of a Ledger.
type LedgerConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
	Recorder Recorder
	// VersionAttempts bounds how often RequestEnhancement retries after a version collision.
	VersionAttempts int
}

// Ledger owns the note/enhancement relationship. It keeps no state between calls;
// every invariant is enforced inside a database transaction or by a constraint.
type Ledger struct {
	db              *gorm.DB
	clock           func() time.Time
	logger          *zap.Logger
	recorder        Recorder
	versionAttempts int
}

// NewLedger validates the configuration and returns a Ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Database == nil {
		return nil, models.NewServiceError(opLedgerNew, reasonMissingDatabase, models.ErrStorageUnavailable, errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	attempts := cfg.VersionAttempts
	if attempts <= 0 {
		attempts = defaultVersionTries
	}
	return &Ledger{
		db:              cfg.Database,
		clock:           clock,
		logger:          logger,
		recorder:        recorder,
		versionAttempts: attempts,
	}, nil
}

// CompletionResult carries the output of a finished enhancement.
type CompletionResult struct {
	EnhancedURL      string
	ProcessingTimeMS *int64
	ModelVersion     *string
	Metadata         map[string]any
}

// RequestEnhancement creates the next version for the note in pending status.
// A version collision with a concurrent request retries with a fresh version number.
func (ledger *Ledger) RequestEnhancement(ctx context.Context, noteID uint64, enhancementType models.EnhancementType, originalURL string) (models.Enhancement, error) {
	if ledger.db == nil {
		return models.Enhancement{}, ledger.fail(opRequestEnhancement, reasonMissingDatabase, models.ErrStorageUnavailable, errMissingDatabase)
	}
	parsedType, err := models.ParseEnhancementType(string(enhancementType))
	if err != nil {
		ledger.recorder.RecordTransition(opRequestEnhancement, outcomeRejected)
		return models.Enhancement{}, models.NewServiceError(opRequestEnhancement, reasonInvalidType, models.ErrInvalidArgument, err)
	}
	trimmedURL := strings.TrimSpace(originalURL)
	if len(trimmedURL) > maxURLLength {
		ledger.recorder.RecordTransition(opRequestEnhancement, outcomeRejected)
		return models.Enhancement{}, models.NewServiceError(opRequestEnhancement, reasonInvalidArgument, models.ErrInvalidArgument,
			fmt.Errorf("original url exceeds %d characters", maxURLLength))
	}

	for attempt := 1; ; attempt++ {
		created, err := ledger.insertNextVersion(ctx, noteID, parsedType, trimmedURL)
		if err == nil {
			ledger.recorder.RecordTransition(opRequestEnhancement, outcomeSucceeded)
			ledger.logger.Info("enhancement requested",
				zap.Uint64(fieldNoteID, noteID),
				zap.Uint64(fieldEnhancementID, created.ID),
				zap.Int64(fieldVersion, created.Version),
				zap.String("enhancement_type", string(parsedType)))
			return created, nil
		}
		if !errors.Is(err, errVersionTaken) {
			ledger.recordFailure(opRequestEnhancement, err)
			return models.Enhancement{}, err
		}
		ledger.recorder.RecordVersionRetry()
		if attempt >= ledger.versionAttempts {
			ledger.recordFailure(opRequestEnhancement, models.ErrConstraintViolation)
			return models.Enhancement{}, ledger.fail(opRequestEnhancement, reasonVersionConflict, models.ErrConstraintViolation, err,
				zap.Uint64(fieldNoteID, noteID),
				zap.Int("attempts", attempt))
		}
		ledger.logger.Debug("enhancement version collision, retrying",
			zap.Uint64(fieldNoteID, noteID),
			zap.Int("attempt", attempt))
	}
}

func (ledger *Ledger) insertNextVersion(ctx context.Context, noteID uint64, enhancementType models.EnhancementType, originalURL string) (models.Enhancement, error) {
	var created models.Enhancement
	transactionErr := ledger.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		note, err := ledger.lockNote(transaction, opRequestEnhancement, noteID)
		if err != nil {
			return err
		}

		var maxVersion int64
		if err := transaction.Model(&models.Enhancement{}).
			Where(queryNoteID, noteID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&maxVersion).Error; err != nil {
			return ledger.fail(opRequestEnhancement, reasonQueryFailed, models.ErrStorageUnavailable, err, zap.Uint64(fieldNoteID, noteID))
		}
		nextVersion := max(maxVersion, note.EnhancementVersion) + 1

		now := ledger.clock().UTC()
		created = models.Enhancement{
			NoteID:          noteID,
			EnhancementType: enhancementType,
			Version:         nextVersion,
			IsCurrent:       false,
			OriginalURL:     originalURL,
			Status:          models.EnhancementStatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := transaction.Create(&created).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("%w: note %d version %d: %v", errVersionTaken, noteID, nextVersion, err)
			}
			return ledger.fail(opRequestEnhancement, reasonInsertFailed, models.ErrStorageUnavailable, err, zap.Uint64(fieldNoteID, noteID))
		}

		if err := transaction.Model(&models.Note{}).
			Where(queryID, noteID).
			UpdateColumns(map[string]any{
				"enhancement_version": nextVersion,
				"enhancement_status":  string(models.EnhancementStatusPending),
				"updated_at":          now,
			}).Error; err != nil {
			return ledger.fail(opRequestEnhancement, reasonUpdateFailed, models.ErrStorageUnavailable, err, zap.Uint64(fieldNoteID, noteID))
		}
		return nil
	})
	if transactionErr != nil {
		return models.Enhancement{}, ledger.transactionFailure(opRequestEnhancement, transactionErr)
	}
	return created, nil
}

// BeginProcessing claims a pending enhancement. It is not idempotent: a second
// claim fails with ErrInvalidStateTransition, which workers treat as "already claimed".
func (ledger *Ledger) BeginProcessing(ctx context.Context, enhancementID uint64) (models.Enhancement, error) {
	return ledger.applyTransition(ctx, enhancementID, transition{
		operation: opBeginProcessing,
		from:      models.EnhancementStatusPending,
		to:        models.EnhancementStatusProcessing,
	})
}

// CompleteEnhancement finishes a processing enhancement and makes it the note's current version.
func (ledger *Ledger) CompleteEnhancement(ctx context.Context, enhancementID uint64, result CompletionResult) (models.Enhancement, error) {
	enhancedURL := strings.TrimSpace(result.EnhancedURL)
	if err := validateCompletion(enhancedURL, result); err != nil {
		ledger.recorder.RecordTransition(opCompleteEnhancement, outcomeRejected)
		return models.Enhancement{}, models.NewServiceError(opCompleteEnhancement, reasonInvalidArgument, models.ErrInvalidArgument, err)
	}

	completed, err := ledger.applyTransition(ctx, enhancementID, transition{
		operation: opCompleteEnhancement,
		from:      models.EnhancementStatusProcessing,
		to:        models.EnhancementStatusCompleted,
		patch: func(_ models.Enhancement) (models.Enhancement, []string) {
			return models.Enhancement{
				EnhancedURL:      enhancedURL,
				ProcessingTimeMS: result.ProcessingTimeMS,
				ModelVersion:     result.ModelVersion,
				Metadata:         result.Metadata,
			}, []string{"enhanced_url", "processing_time_ms", "model_version", "metadata"}
		},
		afterSwap: ledger.promoteToCurrent,
		noteColumns: map[string]any{
			"is_enhanced": true,
		},
	})
	if err != nil {
		return models.Enhancement{}, err
	}
	if completed.ProcessingTimeMS != nil {
		ledger.recorder.ObserveProcessingTime(completed.EnhancementType, *completed.ProcessingTimeMS)
	}
	return completed, nil
}

// FailEnhancement marks a processing enhancement as failed. The current version is untouched;
// the reason is kept in the row metadata under "failure_reason".
func (ledger *Ledger) FailEnhancement(ctx context.Context, enhancementID uint64, reason string) (models.Enhancement, error) {
	trimmedReason := strings.TrimSpace(reason)
	failed, err := ledger.applyTransition(ctx, enhancementID, transition{
		operation: opFailEnhancement,
		from:      models.EnhancementStatusProcessing,
		to:        models.EnhancementStatusFailed,
		patch: func(current models.Enhancement) (models.Enhancement, []string) {
			if trimmedReason == "" {
				return models.Enhancement{}, nil
			}
			metadata := make(map[string]any, len(current.Metadata)+1)
			for key, value := range current.Metadata {
				metadata[key] = value
			}
			metadata[metadataFailureReasonKey] = trimmedReason
			return models.Enhancement{Metadata: metadata}, []string{"metadata"}
		},
	})
	if err != nil {
		return models.Enhancement{}, err
	}
	ledger.logger.Warn("enhancement failed",
		zap.Uint64(fieldNoteID, failed.NoteID),
		zap.Uint64(fieldEnhancementID, failed.ID),
		zap.Int64(fieldVersion, failed.Version),
		zap.String("reason", trimmedReason))
	return failed, nil
}

// CurrentEnhancement returns the note's current enhancement, or nil when none has completed.
func (ledger *Ledger) CurrentEnhancement(ctx context.Context, noteID uint64) (*models.Enhancement, error) {
	if ledger.db == nil {
		return nil, ledger.fail(opCurrentEnhancement, reasonMissingDatabase, models.ErrStorageUnavailable, errMissingDatabase)
	}
	var current models.Enhancement
	err := ledger.db.WithContext(ctx).
		Where("note_id = ? AND is_current = ?", noteID, true).
		Take(&current).Error
	if err == nil {
		return &current, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.fail(opCurrentEnhancement, reasonQueryFailed, models.ErrStorageUnavailable, err, zap.Uint64(fieldNoteID, noteID))
	}
	if err := ledger.ensureNoteExists(ctx, opCurrentEnhancement, noteID); err != nil {
		return nil, err
	}
	return nil, nil
}

// History returns every enhancement of the note ordered by version. Each call reads a fresh snapshot.
func (ledger *Ledger) History(ctx context.Context, noteID uint64) ([]models.Enhancement, error) {
	if ledger.db == nil {
		return nil, ledger.fail(opHistory, reasonMissingDatabase, models.ErrStorageUnavailable, errMissingDatabase)
	}
	if err := ledger.ensureNoteExists(ctx, opHistory, noteID); err != nil {
		return nil, err
	}
	history := make([]models.Enhancement, 0)
	if err := ledger.db.WithContext(ctx).
		Where(queryNoteID, noteID).
		Order(orderVersionAsc).
		Find(&history).Error; err != nil {
		return nil, ledger.fail(opHistory, reasonQueryFailed, models.ErrStorageUnavailable, err, zap.Uint64(fieldNoteID, noteID))
	}
	return history, nil
}

// ListPending returns pending enhancements oldest first, for workers polling the queue.
func (ledger *Ledger) ListPending(ctx context.Context, limit int) ([]models.Enhancement, error) {
	if ledger.db == nil {
		return nil, ledger.fail(opListPending, reasonMissingDatabase, models.ErrStorageUnavailable, errMissingDatabase)
	}
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	limit = min(limit, maximumPendingLimit)

	pending := make([]models.Enhancement, 0)
	if err := ledger.db.WithContext(ctx).
		Where("status = ?", string(models.EnhancementStatusPending)).
		Order(orderQueue).
		Limit(limit).
		Find(&pending).Error; err != nil {
		return nil, ledger.fail(opListPending, reasonQueryFailed, models.ErrStorageUnavailable, err)
	}
	return pending, nil
}

// DeleteNote removes the note and all of its enhancements in one transaction.
func (ledger *Ledger) DeleteNote(ctx context.Context, noteID uint64) error {
	if ledger.db == nil {
		return ledger.fail(opDeleteNote, reasonMissingDatabase, models.ErrStorageUnavailable, errMissingDatabase)
	}
	var removedEnhancements int64
	transactionErr := ledger.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if _, err := ledger.lockNote(transaction, opDeleteNote, noteID); err != nil {
			return err
		}
		deleteResult := transaction.Where(queryNoteID, noteID).Delete(&models.Enhancement{})
		if deleteResult.Error != nil {
			return ledger.fail(opDeleteNote, reasonDeleteFailed, models.ErrStorageUnavailable, deleteResult.Error, zap.Uint64(fieldNoteID, noteID))
		}
		removedEnhancements = deleteResult.RowsAffected
		if err := transaction.Where(queryID, noteID).Delete(&models.Note{}).Error; err != nil {
			return ledger.fail(opDeleteNote, reasonDeleteFailed, models.ErrStorageUnavailable, err, zap.Uint64(fieldNoteID, noteID))
		}
		return nil
	})
	if transactionErr != nil {
		err := ledger.transactionFailure(opDeleteNote, transactionErr)
		ledger.recordFailure(opDeleteNote, err)
		return err
	}
	ledger.recorder.RecordTransition(opDeleteNote, outcomeSucceeded)
	ledger.logger.Info("note deleted",
		zap.Uint64(fieldNoteID, noteID),
		zap.Int64("enhancements_removed", removedEnhancements))
	return nil
}

type transition struct {
	operation string
	from      models.EnhancementStatus
	to        models.EnhancementStatus
	// patch returns extra enhancement values and the columns they occupy.
	patch       func(current models.Enhancement) (models.Enhancement, []string)
	afterSwap   func(transaction *gorm.DB, operation string, enhancement models.Enhancement) error
	noteColumns map[string]any
}

// applyTransition moves one enhancement between statuses with a compare-and-swap update,
// so concurrent callers racing on the same row observe exactly one winner.
func (ledger *Ledger) applyTransition(ctx context.Context, enhancementID uint64, step transition) (models.Enhancement, error) {
	if ledger.db == nil {
		return models.Enhancement{}, ledger.fail(step.operation, reasonMissingDatabase, models.ErrStorageUnavailable, errMissingDatabase)
	}

	var updated models.Enhancement
	transactionErr := ledger.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		var target models.Enhancement
		err := transaction.Where(queryID, enhancementID).Take(&target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewServiceError(step.operation, reasonNotFound, models.ErrNotFound,
				fmt.Errorf("enhancement %d", enhancementID))
		}
		if err != nil {
			return ledger.fail(step.operation, reasonQueryFailed, models.ErrStorageUnavailable, err, zap.Uint64(fieldEnhancementID, enhancementID))
		}
		if target.Status != step.from {
			return invalidTransition(step, target)
		}
		if _, err := ledger.lockNote(transaction, step.operation, target.NoteID); err != nil {
			return err
		}

		now := ledger.clock().UTC()
		values := models.Enhancement{}
		columns := []string{fieldStatus, "updated_at"}
		if step.patch != nil {
			patchValues, patchColumns := step.patch(target)
			values = patchValues
			columns = append(columns, patchColumns...)
		}
		values.Status = step.to
		values.UpdatedAt = now

		swap := transaction.Model(&models.Enhancement{}).
			Where(queryIDStatus, enhancementID, string(step.from)).
			Select(columns).
			Updates(&values)
		if swap.Error != nil {
			return ledger.fail(step.operation, reasonUpdateFailed, models.ErrStorageUnavailable, swap.Error, zap.Uint64(fieldEnhancementID, enhancementID))
		}
		if swap.RowsAffected == 0 {
			var latest models.Enhancement
			if err := transaction.Where(queryID, enhancementID).Take(&latest).Error; err != nil {
				latest = target
			}
			return invalidTransition(step, latest)
		}

		if step.afterSwap != nil {
			if err := step.afterSwap(transaction, step.operation, target); err != nil {
				return err
			}
		}

		noteColumns := map[string]any{
			"enhancement_status": string(step.to),
			"updated_at":         now,
		}
		for column, value := range step.noteColumns {
			noteColumns[column] = value
		}
		if err := transaction.Model(&models.Note{}).
			Where(queryID, target.NoteID).
			UpdateColumns(noteColumns).Error; err != nil {
			return ledger.fail(step.operation, reasonUpdateFailed, models.ErrStorageUnavailable, err, zap.Uint64(fieldNoteID, target.NoteID))
		}

		if err := transaction.Where(queryID, enhancementID).Take(&updated).Error; err != nil {
			return ledger.fail(step.operation, reasonQueryFailed, models.ErrStorageUnavailable, err, zap.Uint64(fieldEnhancementID, enhancementID))
		}
		return nil
	})
	if transactionErr != nil {
		err := ledger.transactionFailure(step.operation, transactionErr)
		ledger.recordFailure(step.operation, err)
		return models.Enhancement{}, err
	}

	ledger.recorder.RecordTransition(step.operation, outcomeSucceeded)
	ledger.logger.Info("enhancement transitioned",
		zap.String("operation", step.operation),
		zap.Uint64(fieldNoteID, updated.NoteID),
		zap.Uint64(fieldEnhancementID, updated.ID),
		zap.Int64(fieldVersion, updated.Version),
		zap.String(fieldStatus, string(updated.Status)))
	return updated, nil
}

// promoteToCurrent clears the previous holder of the current flag before claiming it,
// keeping the partial unique index satisfied at every statement.
func (ledger *Ledger) promoteToCurrent(transaction *gorm.DB, operation string, enhancement models.Enhancement) error {
	if err := transaction.Model(&models.Enhancement{}).
		Where(queryOtherCurrent, enhancement.NoteID, true, enhancement.ID).
		UpdateColumn("is_current", false).Error; err != nil {
		return ledger.fail(operation, reasonUpdateFailed, models.ErrStorageUnavailable, err, zap.Uint64(fieldNoteID, enhancement.NoteID))
	}
	if err := transaction.Model(&models.Enhancement{}).
		Where(queryID, enhancement.ID).
		UpdateColumn("is_current", true).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return ledger.fail(operation, reasonCurrentConflict, models.ErrConstraintViolation, err, zap.Uint64(fieldNoteID, enhancement.NoteID))
		}
		return ledger.fail(operation, reasonUpdateFailed, models.ErrStorageUnavailable, err, zap.Uint64(fieldNoteID, enhancement.NoteID))
	}
	return nil
}

// lockNote loads the note under a row lock, serialising ledger writes per note.
func (ledger *Ledger) lockNote(transaction *gorm.DB, operation string, noteID uint64) (models.Note, error) {
	var note models.Note
	err := transaction.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(queryID, noteID).
		Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Note{}, models.NewServiceError(operation, reasonNoteNotFound, models.ErrNotFound, fmt.Errorf("note %d", noteID))
	}
	if err != nil {
		return models.Note{}, ledger.fail(operation, reasonQueryFailed, models.ErrStorageUnavailable, err, zap.Uint64(fieldNoteID, noteID))
	}
	return note, nil
}

func (ledger *Ledger) ensureNoteExists(ctx context.Context, operation string, noteID uint64) error {
	var count int64
	if err := ledger.db.WithContext(ctx).
		Model(&models.Note{}).
		Where(queryID, noteID).
		Count(&count).Error; err != nil {
		return ledger.fail(operation, reasonQueryFailed, models.ErrStorageUnavailable, err, zap.Uint64(fieldNoteID, noteID))
	}
	if count == 0 {
		return models.NewServiceError(operation, reasonNoteNotFound, models.ErrNotFound, fmt.Errorf("note %d", noteID))
	}
	return nil
}

func invalidTransition(step transition, current models.Enhancement) error {
	if current.Status.Terminal() {
		return models.NewServiceError(step.operation, reasonInvalidState, models.ErrInvalidStateTransition,
			fmt.Errorf("enhancement %d is already %s", current.ID, current.Status))
	}
	return models.NewServiceError(step.operation, reasonInvalidState, models.ErrInvalidStateTransition,
		fmt.Errorf("enhancement %d is %s, expected %s", current.ID, current.Status, step.from))
}

func validateCompletion(enhancedURL string, result CompletionResult) error {
	if enhancedURL == "" {
		return errors.New("enhanced url is required")
	}
	if len(enhancedURL) > maxURLLength {
		return fmt.Errorf("enhanced url exceeds %d characters", maxURLLength)
	}
	if result.ProcessingTimeMS != nil && *result.ProcessingTimeMS < 0 {
		return fmt.Errorf("processing time must not be negative: %d", *result.ProcessingTimeMS)
	}
	if result.ModelVersion != nil && len(*result.ModelVersion) > maxModelVersionLen {
		return fmt.Errorf("model version exceeds %d characters", maxModelVersionLen)
	}
	return nil
}

// transactionFailure keeps service errors raised inside a transaction and classifies
// anything else (commit failures, cancelled contexts) as storage unavailability.
func (ledger *Ledger) transactionFailure(operation string, err error) error {
	var serviceErr *models.ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}
	if errors.Is(err, errVersionTaken) {
		return err
	}
	return ledger.fail(operation, reasonTransactionFailed, models.ErrStorageUnavailable, err)
}

func (ledger *Ledger) recordFailure(operation string, err error) {
	if errors.Is(err, models.ErrStorageUnavailable) {
		ledger.recorder.RecordTransition(operation, outcomeStorageFailed)
		return
	}
	ledger.recorder.RecordTransition(operation, outcomeRejected)
}

func (ledger *Ledger) fail(operation, reason string, kind, err error, fields ...zap.Field) error {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	ledger.loggerOrDefault().Error("enhancement ledger error", attrs...)
	return models.NewServiceError(operation, reason, kind, err)
}

func (ledger *Ledger) loggerOrDefault() *zap.Logger {
	if ledger == nil || ledger.logger == nil {
		return noOpLogger
	}
	return ledger.logger
}

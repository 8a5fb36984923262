package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smartnotes-ai/backend/internal/auth"
	"github.com/smartnotes-ai/backend/internal/database"
	"github.com/smartnotes-ai/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opResolveUser = "users.resolve_user"
	opGetUser     = "users.get_user"
	opDeleteUser  = "users.delete_user"

	maxUsernameAttempts = 20
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable email.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrInactiveUser indicates the account has been deactivated.
	ErrInactiveUser = errors.New("users: inactive user")
)

// ServiceConfig describes the dependencies required for user resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service maps authenticated sessions onto stored users.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// ResolveUser returns the stored user for the session, creating it on first sight.
// The display name follows the latest claims.
func (s *Service) ResolveUser(ctx context.Context, claims auth.SessionClaims) (models.User, error) {
	email := normalizeEmail(claims.UserEmail)
	if email == "" {
		return models.User{}, models.NewServiceError(opResolveUser, "missing_email", models.ErrInvalidArgument, ErrInvalidIdentity)
	}

	if cachedIdentifier, ok := s.cache.Load(email); ok {
		if userID, ok := cachedIdentifier.(uint64); ok {
			user, err := s.GetUser(ctx, userID)
			if err == nil {
				return s.refresh(ctx, user, claims)
			}
			if !errors.Is(err, models.ErrNotFound) {
				return models.User{}, err
			}
			s.cache.Delete(email)
		}
	}

	user, err := s.findByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user, err = s.create(ctx, email, claims)
	}
	if err != nil {
		return models.User{}, s.fail(opResolveUser, "query_failed", models.ErrStorageUnavailable, err)
	}

	s.cache.Store(email, user.ID)
	return s.refresh(ctx, user, claims)
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, userID uint64) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, models.NewServiceError(opGetUser, "user_not_found", models.ErrNotFound, fmt.Errorf("user %d", userID))
	}
	if err != nil {
		return models.User{}, s.fail(opGetUser, "query_failed", models.ErrStorageUnavailable, err)
	}
	return user, nil
}

// DeleteUser removes the user with every notebook, note and enhancement it owns.
func (s *Service) DeleteUser(ctx context.Context, userID uint64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		notebookIDs := tx.Model(&models.Notebook{}).Select("id").Where("user_id = ?", userID)
		noteIDs := tx.Model(&models.Note{}).Select("id").Where("notebook_id IN (?)", notebookIDs)
		if err := tx.Where("note_id IN (?)", noteIDs).Delete(&models.Enhancement{}).Error; err != nil {
			return s.fail(opDeleteUser, "delete_failed", models.ErrStorageUnavailable, err)
		}
		if err := tx.Where("notebook_id IN (?)", notebookIDs).Delete(&models.Note{}).Error; err != nil {
			return s.fail(opDeleteUser, "delete_failed", models.ErrStorageUnavailable, err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Notebook{}).Error; err != nil {
			return s.fail(opDeleteUser, "delete_failed", models.ErrStorageUnavailable, err)
		}
		result := tx.Where("id = ?", userID).Delete(&models.User{})
		if result.Error != nil {
			return s.fail(opDeleteUser, "delete_failed", models.ErrStorageUnavailable, result.Error)
		}
		if result.RowsAffected == 0 {
			return models.NewServiceError(opDeleteUser, "user_not_found", models.ErrNotFound, fmt.Errorf("user %d", userID))
		}
		return nil
	})
	if err != nil {
		var serviceErr *models.ServiceError
		if errors.As(err, &serviceErr) {
			return err
		}
		return s.fail(opDeleteUser, "transaction_failed", models.ErrStorageUnavailable, err)
	}
	s.cache.Range(func(key, value any) bool {
		if value == userID {
			s.cache.Delete(key)
		}
		return true
	})
	return nil
}

func (s *Service) findByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	return user, err
}

// create inserts the user, retrying numbered usernames on collision. A concurrent
// insert of the same email resolves to the row that won.
func (s *Service) create(ctx context.Context, email string, claims auth.SessionClaims) (models.User, error) {
	base := deriveUsername(email)
	for attempt := 1; attempt <= maxUsernameAttempts; attempt++ {
		now := s.now().UTC()
		user := models.User{
			Email:            email,
			Username:         usernameCandidate(base, attempt),
			DisplayName:      normalize(claims.UserDisplayName),
			IsActive:         true,
			SubscriptionTier: models.SubscriptionTierFree,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		err := s.db.WithContext(ctx).Create(&user).Error
		if err == nil {
			s.logger.Info("user created", zap.Uint64("user_id", user.ID), zap.String("username", user.Username))
			return user, nil
		}
		if !database.IsUniqueViolation(err) {
			return models.User{}, err
		}
		existing, lookupErr := s.findByEmail(ctx, email)
		if lookupErr == nil {
			return existing, nil
		}
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return models.User{}, lookupErr
		}
	}
	return models.User{}, fmt.Errorf("users: no free username for %s after %d attempts", base, maxUsernameAttempts)
}

func (s *Service) refresh(ctx context.Context, user models.User, claims auth.SessionClaims) (models.User, error) {
	if !user.IsActive {
		return models.User{}, ErrInactiveUser
	}
	displayName := normalize(claims.UserDisplayName)
	if displayName == "" || displayName == user.DisplayName {
		return user, nil
	}
	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		UpdateColumns(map[string]any{"display_name": displayName, "updated_at": now}).Error; err != nil {
		return models.User{}, s.fail(opResolveUser, "update_failed", models.ErrStorageUnavailable, err)
	}
	user.DisplayName = displayName
	user.UpdatedAt = now
	return user, nil
}

func (s *Service) fail(operation, reason string, kind, err error) error {
	s.logger.Error("user service error",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err))
	return models.NewServiceError(operation, reason, kind, err)
}

package users

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smartnotes-ai/backend/internal/auth"
	"github.com/smartnotes-ai/backend/internal/database"
	"github.com/smartnotes-ai/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := database.Open(database.Config{DSN: filepath.Join(t.TempDir(), "users.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1700000000, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func sessionFor(email, displayName string) auth.SessionClaims {
	return auth.SessionClaims{
		UserEmail:        email,
		UserDisplayName:  displayName,
		RegisteredClaims: jwt.RegisteredClaims{Subject: email},
	}
}

func TestResolveUserCreatesOnFirstSight(t *testing.T) {
	service, db := newTestService(t)

	user, err := service.ResolveUser(context.Background(), sessionFor(" Ada.Lovelace@Example.com ", "Ada"))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if user.Email != "ada.lovelace@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Username != "ada.lovelace" {
		t.Fatalf("expected username from email, got %q", user.Username)
	}
	if !user.IsActive || user.SubscriptionTier != models.SubscriptionTierFree {
		t.Fatalf("unexpected defaults: %+v", user)
	}

	again, err := service.ResolveUser(context.Background(), sessionFor("ada.lovelace@example.com", "Countess Ada"))
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("expected stable user id, got %d and %d", user.ID, again.ID)
	}
	if again.DisplayName != "Countess Ada" {
		t.Fatalf("expected display name refresh, got %q", again.DisplayName)
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single user row, got %d", count)
	}
}

func TestResolveUserSuffixesTakenUsernames(t *testing.T) {
	service, _ := newTestService(t)

	first, err := service.ResolveUser(context.Background(), sessionFor("sam@work.example", ""))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	second, err := service.ResolveUser(context.Background(), sessionFor("sam@home.example", ""))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if first.Username != "sam" || second.Username != "sam-2" {
		t.Fatalf("unexpected usernames %q and %q", first.Username, second.Username)
	}
}

func TestResolveUserRejectsMissingEmailAndInactiveUsers(t *testing.T) {
	service, db := newTestService(t)

	if _, err := service.ResolveUser(context.Background(), sessionFor("  ", "")); !errors.Is(err, models.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	user, err := service.ResolveUser(context.Background(), sessionFor("former@example.com", ""))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).UpdateColumn("is_active", false).Error; err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := service.ResolveUser(context.Background(), sessionFor("former@example.com", "")); !errors.Is(err, ErrInactiveUser) {
		t.Fatalf("expected inactive user error, got %v", err)
	}
}

func TestDeleteUserCascadesToOwnedContent(t *testing.T) {
	service, db := newTestService(t)
	user, err := service.ResolveUser(context.Background(), sessionFor("owner@example.com", ""))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	now := time.Unix(1700000000, 0).UTC()
	notebook := models.Notebook{UserID: user.ID, Name: "Chemistry", CreatedAt: now, UpdatedAt: now}
	if err := db.Create(&notebook).Error; err != nil {
		t.Fatalf("seed notebook failed: %v", err)
	}
	note := models.Note{NotebookID: notebook.ID, Title: "Titration", CreatedAt: now, UpdatedAt: now}
	if err := db.Create(&note).Error; err != nil {
		t.Fatalf("seed note failed: %v", err)
	}
	enhancement := models.Enhancement{NoteID: note.ID, EnhancementType: models.EnhancementTypeOCR, Version: 1, Status: models.EnhancementStatusPending, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(&enhancement).Error; err != nil {
		t.Fatalf("seed enhancement failed: %v", err)
	}

	if err := service.DeleteUser(context.Background(), user.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	for _, model := range []any{&models.Notebook{}, &models.Note{}, &models.Enhancement{}} {
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 0 {
			t.Fatalf("expected %T rows to be removed, found %d", model, count)
		}
	}
	if _, err := service.GetUser(context.Background(), user.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected deleted user to be not found, got %v", err)
	}
	if err := service.DeleteUser(context.Background(), user.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected second delete to be not found, got %v", err)
	}

	recreated, err := service.ResolveUser(context.Background(), sessionFor("owner@example.com", ""))
	if err != nil {
		t.Fatalf("resolve after delete failed: %v", err)
	}
	if recreated.ID == user.ID {
		t.Fatalf("expected a fresh user after deletion")
	}
}

func TestDeriveUsername(t *testing.T) {
	testCases := map[string]string{
		"Jane.Doe+notes@example.com": "jane.doenotes",
		"__@example.com":             "user",
		"zoë@example.com":            "zo",
		"no-at-sign":                 "no-at-sign",
	}
	for email, want := range testCases {
		if got := deriveUsername(email); got != want {
			t.Fatalf("deriveUsername(%q) = %q, want %q", email, got, want)
		}
	}
	long := strings.Repeat("a", 150) + "@example.com"
	if got := deriveUsername(long); len(got) != maxUsernameLength {
		t.Fatalf("expected username truncated to %d, got %d", maxUsernameLength, len(got))
	}
	if got := usernameCandidate(strings.Repeat("b", maxUsernameLength), 3); len(got) != maxUsernameLength || !strings.HasSuffix(got, "-3") {
		t.Fatalf("unexpected numbered candidate %q", got)
	}
}

package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smartnotes-ai/backend/internal/auth"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubSessionValidator struct {
	claims      auth.SessionClaims
	validateErr error
}

func (s stubSessionValidator) ValidateRequest(*http.Request) (auth.SessionClaims, error) {
	return s.claims, s.validateErr
}

func runAuthenticate(t *testing.T, validateErr error) (*httptest.ResponseRecorder, []observer.LoggedEntry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/notebooks", http.NoBody)
	request.Header.Set("Authorization", "Bearer some-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{validateErr: validateErr},
		logger:   zap.New(core),
	}

	handler.authenticate(ctx)
	return recorder, logs.All()
}

func TestAuthenticateLogsExpiredSessionAtInfoLevel(t *testing.T) {
	recorder, entries := runAuthenticate(t, auth.ErrExpiredSessionToken)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	if recorder.Body.String() != `{"code":"auth.session_expired","error":"unauthorized"}` {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired session, got %s", entry.Level)
	}
	if entry.Message != "session validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), auth.ErrExpiredSessionToken) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired session error context, got %v", entry.Context)
	}
}

func TestAuthenticateLogsUnexpectedSessionErrorAtWarnLevel(t *testing.T) {
	recorder, entries := runAuthenticate(t, errors.New("signature mismatch"))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for unexpected error, got %s", entries[0].Level)
	}
}

func TestRequireRoleRejectsSessionsWithoutRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(claimsContextKey, auth.SessionClaims{UserRoles: []string{"reader"}})
		c.Next()
	})
	router.GET("/worker", requireRole(auth.RoleEnhancementWorker), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/worker", http.NoBody))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d", recorder.Code)
	}
	if recorder.Body.String() != `{"code":"auth.role_required","error":"forbidden"}` {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

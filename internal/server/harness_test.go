package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartnotes-ai/backend/internal/auth"
	"github.com/smartnotes-ai/backend/internal/database"
	"github.com/smartnotes-ai/backend/internal/enhancements"
	"github.com/smartnotes-ai/backend/internal/metrics"
	"github.com/smartnotes-ai/backend/internal/notes"
	"github.com/smartnotes-ai/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "test-signing-secret"
	testIssuer        = "smartnotes-auth"
	testCookieName    = "app_session"
)

type testHarness struct {
	server     *httptest.Server
	issuer     *auth.TokenIssuer
	dispatcher *RealtimeDispatcher
	metrics    *metrics.LedgerMetrics
	db         *gorm.DB
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	db, err := database.Open(database.Config{DSN: filepath.Join(t.TempDir(), "api.db")}, logger)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	ledgerMetrics, err := metrics.NewLedgerMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	ledger, err := enhancements.NewLedger(enhancements.LedgerConfig{Database: db, Logger: logger, Recorder: ledgerMetrics})
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	notesService, err := notes.NewService(notes.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to create notes service: %v", err)
	}
	usersService, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to create users service: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to create session validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to create token issuer: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		APIPrefix:         "/api",
		CORSOrigins:       []string{"https://app.example.com"},
		Debug:             true,
		Sessions:          validator,
		Users:             usersService,
		Notes:             notesService,
		Ledger:            ledger,
		Metrics:           ledgerMetrics,
		Realtime:          dispatcher,
		Logger:            logger,
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &testHarness{server: server, issuer: issuer, dispatcher: dispatcher, metrics: ledgerMetrics, db: db}
}

func (harness *testHarness) token(t *testing.T, email string, roles ...string) string {
	t.Helper()
	token, _, err := harness.issuer.IssueSessionToken(context.Background(), auth.SessionIdentity{
		Subject: "sub-" + email,
		Email:   email,
		Roles:   roles,
	})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

// do sends a JSON request and decodes a JSON response into out when out is non-nil.
func (harness *testHarness) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, harness.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()
	if out != nil {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode %s %s response: %v", method, path, err)
		}
	}
	return response.StatusCode
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

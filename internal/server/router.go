package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smartnotes-ai/backend/internal/auth"
	"github.com/smartnotes-ai/backend/internal/enhancements"
	"github.com/smartnotes-ai/backend/internal/metrics"
	"github.com/smartnotes-ai/backend/internal/models"
	"github.com/smartnotes-ai/backend/internal/notes"
	"github.com/smartnotes-ai/backend/internal/telemetry"
	"github.com/smartnotes-ai/backend/internal/users"
	"go.uber.org/zap"
)

const (
	userContextKey      = "smartnotes_user"
	claimsContextKey    = "smartnotes_claims"
	requestIDContextKey = "smartnotes_request_id"
	requestIDHeader     = "X-Request-ID"
	serviceName         = "smartnotes-api"
	unmatchedRoute      = "unmatched"
	defaultAPIPrefix    = "/api"
	defaultHeartbeat    = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingNotesService     = errors.New("notes service dependency required")
	errMissingLedger           = errors.New("enhancement ledger dependency required")
)

// SessionValidator authenticates a request from its bearer token or session cookie.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Dependencies wires the HTTP layer to the services it fronts.
type Dependencies struct {
	APIPrefix   string
	CORSOrigins []string
	Debug       bool

	Sessions SessionValidator
	Users    *users.Service
	Notes    *notes.Service
	Ledger   *enhancements.Ledger
	Metrics  *metrics.LedgerMetrics
	Reporter *telemetry.Reporter
	Realtime *RealtimeDispatcher
	// Health reports storage reachability for GET /healthz. Nil means always healthy.
	Health func(ctx context.Context) error

	Logger            *zap.Logger
	Clock             func() time.Time
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Notes == nil {
		return nil, errMissingNotesService
	}
	if deps.Ledger == nil {
		return nil, errMissingLedger
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	prefix := strings.TrimRight(strings.TrimSpace(deps.APIPrefix), "/")
	if prefix == "" {
		prefix = defaultAPIPrefix
	}

	handler := &httpHandler{
		sessions:  deps.Sessions,
		users:     deps.Users,
		notes:     deps.Notes,
		ledger:    deps.Ledger,
		realtime:  deps.Realtime,
		health:    deps.Health,
		logger:    logger,
		clock:     clock,
		heartbeat: heartbeat,
	}

	router := gin.New()
	router.Use(requestIDMiddleware())
	if deps.Metrics != nil {
		router.Use(metricsMiddleware(deps.Metrics))
	}
	router.Use(deps.Reporter.Middleware())
	if len(deps.CORSOrigins) > 0 {
		router.Use(corsMiddleware(deps.CORSOrigins))
	}

	router.GET("/", handler.handleBanner)
	router.GET("/healthz", handler.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.Debug {
		router.GET("/sentry-debug", handleSentryDebug)
	}

	api := router.Group(prefix)
	api.Use(handler.authenticate)
	api.GET("/me", handler.handleMe)
	api.DELETE("/me", handler.handleDeleteMe)
	if deps.Realtime != nil {
		api.GET("/events", handler.handleEvents)
	}

	api.POST("/notebooks", handler.handleCreateNotebook)
	api.GET("/notebooks", handler.handleListNotebooks)
	api.PATCH("/notebooks/:id", handler.handleUpdateNotebook)
	api.DELETE("/notebooks/:id", handler.handleDeleteNotebook)
	api.POST("/notebooks/:id/notes", handler.handleCreateNote)
	api.GET("/notebooks/:id/notes", handler.handleListNotes)

	api.GET("/notes/:id", handler.handleGetNote)
	api.PUT("/notes/:id/strokes", handler.handleUpdateStrokes)
	api.DELETE("/notes/:id", handler.handleDeleteNote)
	api.POST("/notes/:id/enhancements", handler.handleRequestEnhancement)
	api.GET("/notes/:id/enhancements", handler.handleEnhancementHistory)
	api.GET("/notes/:id/enhancements/current", handler.handleCurrentEnhancement)

	worker := api.Group("/worker")
	worker.Use(requireRole(auth.RoleEnhancementWorker))
	worker.GET("/enhancements/pending", handler.handleListPending)
	worker.POST("/enhancements/:id/begin", handler.handleBeginProcessing)
	worker.POST("/enhancements/:id/complete", handler.handleCompleteEnhancement)
	worker.POST("/enhancements/:id/fail", handler.handleFailEnhancement)

	return router, nil
}

type httpHandler struct {
	sessions  SessionValidator
	users     *users.Service
	notes     *notes.Service
	ledger    *enhancements.Ledger
	realtime  *RealtimeDispatcher
	health    func(ctx context.Context) error
	logger    *zap.Logger
	clock     func() time.Time
	heartbeat time.Duration
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	allowAll := false
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
		}
	}
	if allowAll {
		// Credentials forbid a literal wildcard, so every origin is echoed back instead.
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			generated, err := uuid.NewV7()
			if err != nil {
				generated = uuid.New()
			}
			requestID = generated.String()
			c.Request.Header.Set(requestIDHeader, requestID)
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

func metricsMiddleware(recorder *metrics.LedgerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		recorder.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
	}
}

func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := sessionClaims(c)
		if !ok || !claims.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "auth.role_required"})
			return
		}
		c.Next()
	}
}

func (h *httpHandler) authenticate(c *gin.Context) {
	logger := h.requestLogger(c)
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		code := "auth.invalid_session"
		switch {
		case errors.Is(err, auth.ErrExpiredSessionToken):
			code = "auth.session_expired"
			logger.Info("session validation failed", zap.Error(err))
		case errors.Is(err, auth.ErrMissingSessionToken):
			code = "auth.missing_session"
			logger.Debug("session validation failed", zap.Error(err))
		default:
			logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": code})
		return
	}

	user, err := h.users.ResolveUser(c.Request.Context(), claims)
	if err != nil {
		if errors.Is(err, users.ErrInactiveUser) {
			logger.Info("inactive user rejected", zap.String("subject", claims.Subject))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "auth.inactive_user"})
			return
		}
		h.respondError(c, err)
		return
	}
	c.Set(claimsContextKey, claims)
	c.Set(userContextKey, user)
	c.Next()
}

func (h *httpHandler) handleBanner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"service": serviceName, "status": "ok"})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.requestLogger(c).Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleSentryDebug(_ *gin.Context) {
	panic("sentry debug endpoint")
}

func (h *httpHandler) handleMe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "auth.missing_session"})
		return
	}
	claims, _ := sessionClaims(c)
	c.JSON(http.StatusOK, meResponse{User: user, Roles: claims.UserRoles})
}

// handleDeleteMe removes the caller's account with every notebook, note and enhancement it owns.
func (h *httpHandler) handleDeleteMe(c *gin.Context) {
	user, _ := currentUser(c)
	if err := h.users.DeleteUser(c.Request.Context(), user.ID); err != nil {
		h.respondError(c, err)
		return
	}
	h.requestLogger(c).Info("user deleted", zap.Uint64("user_id", user.ID))
	c.Status(http.StatusNoContent)
}

type meResponse struct {
	models.User
	Roles []string `json:"roles"`
}

// respondError maps service error kinds onto HTTP statuses with the {"error","code"} body.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, kind := statusForError(err)
	code := models.CodeOf(err)
	if code == "" {
		code = "server.unexpected"
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		h.requestLogger(c).Error("request failed",
			zap.String("code", code),
			zap.Int("status", status),
			zap.Error(err))
	}
	if models.Retryable(err) {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": kind, "code": code})
}

func statusForError(err error) (int, string) {
	switch models.KindOf(err) {
	case models.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case models.ErrInvalidArgument:
		return http.StatusBadRequest, "invalid_argument"
	case models.ErrInvalidStateTransition:
		return http.StatusConflict, "invalid_state_transition"
	case models.ErrConstraintViolation:
		return http.StatusServiceUnavailable, "constraint_violation"
	case models.ErrStorageUnavailable:
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func badRequest(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "code": code})
}

func pathID(c *gin.Context) (uint64, bool) {
	id, err := notes.ParseID(c.Param("id"))
	if err != nil {
		badRequest(c, "request.invalid_id")
		return 0, false
	}
	return id, true
}

func currentUser(c *gin.Context) (models.User, bool) {
	value, ok := c.Get(userContextKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := value.(models.User)
	return user, ok
}

func sessionClaims(c *gin.Context) (auth.SessionClaims, bool) {
	value, ok := c.Get(claimsContextKey)
	if !ok {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	return claims, ok
}

func (h *httpHandler) requestLogger(c *gin.Context) *zap.Logger {
	logger := h.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if requestID := c.GetString(requestIDContextKey); requestID != "" {
		return logger.With(zap.String("request_id", requestID))
	}
	return logger
}

func queryBool(c *gin.Context, key string) bool {
	value, err := strconv.ParseBool(c.Query(key))
	return err == nil && value
}

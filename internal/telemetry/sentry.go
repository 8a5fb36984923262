// Package telemetry reports panics and server errors to Sentry.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	hubContextKey       = "telemetry.hub"
	defaultFlushTimeout = 2 * time.Second
	componentTag        = "component"
	requestIDTag        = "request_id"
)

// Config controls Sentry reporting. An empty DSN without a Transport disables reporting.
type Config struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
	Debug       bool
	// Transport overrides delivery, mainly for tests.
	Transport sentry.Transport
}

// Reporter owns a dedicated Sentry hub so the process-wide hub stays untouched.
type Reporter struct {
	hub     *sentry.Hub
	logger  *zap.Logger
	enabled bool
}

// NewReporter builds a Reporter. A disabled reporter is valid and drops every event.
func NewReporter(cfg Config, logger *zap.Logger) (*Reporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" && cfg.Transport == nil {
		logger.Info("error reporting disabled")
		return &Reporter{logger: logger}, nil
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1.0
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
		Transport:        cfg.Transport,
		BeforeSend:       scrubEvent,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: sentry client: %w", err)
	}
	logger.Info("error reporting enabled",
		zap.String("environment", cfg.Environment),
		zap.Float64("sample_rate", sampleRate))
	return &Reporter{
		hub:     sentry.NewHub(client, sentry.NewScope()),
		logger:  logger,
		enabled: true,
	}, nil
}

// Enabled reports whether events are delivered.
func (reporter *Reporter) Enabled() bool {
	return reporter != nil && reporter.enabled
}

// CaptureError reports err tagged with the component that observed it.
func (reporter *Reporter) CaptureError(ctx context.Context, component string, err error) {
	if !reporter.Enabled() || err == nil {
		return
	}
	hub := reporter.hubFor(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag(componentTag, component)
		hub.CaptureException(err)
	})
}

// Flush waits for queued events. It returns false when the timeout expires first.
func (reporter *Reporter) Flush(timeout time.Duration) bool {
	if !reporter.Enabled() {
		return true
	}
	if timeout <= 0 {
		timeout = defaultFlushTimeout
	}
	return reporter.hub.Flush(timeout)
}

// Middleware attaches a per-request hub, recovers panics and reports 5xx responses.
// Panics are answered with a JSON 500 so clients always receive the API error shape.
func (reporter *Reporter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !reporter.Enabled() {
			defer recoverPanic(c, reporter.loggerOrNop(), nil)
			c.Next()
			return
		}

		hub := reporter.hub.Clone()
		hub.Scope().SetRequest(c.Request)
		if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
			hub.Scope().SetTag(requestIDTag, requestID)
		}
		c.Set(hubContextKey, hub)
		c.Request = c.Request.WithContext(sentry.SetHubOnContext(c.Request.Context(), hub))

		defer recoverPanic(c, reporter.logger, hub)
		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError && len(c.Errors) > 0 {
			hub.WithScope(func(scope *sentry.Scope) {
				scope.SetTag(componentTag, "http")
				scope.SetTag("route", c.FullPath())
				hub.CaptureException(c.Errors.Last().Err)
			})
		}
	}
}

func recoverPanic(c *gin.Context, logger *zap.Logger, hub *sentry.Hub) {
	recovered := recover()
	if recovered == nil {
		return
	}
	if recoveredErr, ok := recovered.(error); ok && errors.Is(recoveredErr, http.ErrAbortHandler) {
		panic(recovered)
	}
	logger.Error("panic recovered",
		zap.String("path", c.Request.URL.Path),
		zap.Any("panic", recovered))
	if hub != nil {
		hub.RecoverWithContext(c.Request.Context(), recovered)
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal", "code": "server.panic"})
}

func (reporter *Reporter) hubFor(ctx context.Context) *sentry.Hub {
	if ctx != nil {
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			return hub
		}
	}
	return reporter.hub
}

func (reporter *Reporter) loggerOrNop() *zap.Logger {
	if reporter == nil || reporter.logger == nil {
		return zap.NewNop()
	}
	return reporter.logger
}

// hubFromGin returns the hub attached by Middleware, or nil when reporting is disabled.
func hubFromGin(c *gin.Context) *sentry.Hub {
	value, ok := c.Get(hubContextKey)
	if !ok {
		return nil
	}
	hub, _ := value.(*sentry.Hub)
	return hub
}

// scrubEvent strips credentials from captured requests.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event.Request == nil {
		return event
	}
	for header := range event.Request.Headers {
		switch strings.ToLower(header) {
		case "authorization", "cookie":
			event.Request.Headers[header] = "[redacted]"
		}
	}
	event.Request.Cookies = ""
	return event
}

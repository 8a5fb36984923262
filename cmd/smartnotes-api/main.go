package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smartnotes-ai/backend/internal/auth"
	"github.com/smartnotes-ai/backend/internal/config"
	"github.com/smartnotes-ai/backend/internal/database"
	"github.com/smartnotes-ai/backend/internal/enhancements"
	"github.com/smartnotes-ai/backend/internal/logging"
	"github.com/smartnotes-ai/backend/internal/metrics"
	"github.com/smartnotes-ai/backend/internal/notes"
	"github.com/smartnotes-ai/backend/internal/server"
	"github.com/smartnotes-ai/backend/internal/telemetry"
	"github.com/smartnotes-ai/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	// version is overridden at build time with -ldflags "-X main.version=...".
	version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smartnotes-api",
		Short: "SmartNotes backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newMigrateCommand(), newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("api-prefix", defaults.GetString("api.prefix"), "Path prefix of the authenticated API")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "PostgreSQL URL or SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Bool("debug", defaults.GetBool("debug"), "Enable debug endpoints")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "api.prefix", "api-prefix")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "debug", "debug")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema and indexes, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.LoadStorage(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.Environment)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := database.Connect(databaseConfig(appConfig), logger)
			if err != nil {
				return err
			}
			defer closeDatabase(db, logger)
			if err := database.Migrate(db, logger); err != nil {
				return err
			}
			logger.Info("migrations applied", zap.String("dialect", db.Dialector.Name()))
			return nil
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		email       string
		subject     string
		displayName string
		roles       []string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.AuthSigningSecret),
				Issuer:        appConfig.AuthIssuer,
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			if strings.TrimSpace(subject) == "" {
				subject = email
			}
			token, expiresIn, err := issuer.IssueSessionToken(cmd.Context(), auth.SessionIdentity{
				Subject:     subject,
				Email:       email,
				DisplayName: displayName,
				Roles:       roles,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires in %ds\n", expiresIn)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "User email carried by the session")
	cmd.Flags().StringVar(&subject, "subject", "", "Session subject (defaults to the email)")
	cmd.Flags().StringVar(&displayName, "display-name", "", "User display name")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Session role, repeatable (e.g. "+auth.RoleEnhancementWorker+")")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.Environment)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if !appConfig.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	reporter, err := telemetry.NewReporter(telemetry.Config{
		DSN:         appConfig.SentryDSN,
		Environment: appConfig.Environment,
		Release:     version,
		SampleRate:  appConfig.SentrySampleRate,
		Debug:       appConfig.Debug,
	}, logger)
	if err != nil {
		return err
	}
	defer reporter.Flush(shutdownTimeout)

	db, err := database.Open(databaseConfig(appConfig), logger)
	if err != nil {
		reporter.CaptureError(ctx, "database", err)
		return err
	}
	defer closeDatabase(db, logger)
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	ledgerMetrics, err := metrics.NewLedgerMetrics(nil)
	if err != nil {
		return err
	}

	ledger, err := enhancements.NewLedger(enhancements.LedgerConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger.Named("enhancements"),
		Recorder: ledgerMetrics,
	})
	if err != nil {
		return err
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger.Named("notes"),
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger.Named("users"),
	})
	if err != nil {
		return err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
		Issuer:        appConfig.AuthIssuer,
		CookieName:    appConfig.AuthCookieName,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		APIPrefix:   appConfig.APIPrefix,
		CORSOrigins: appConfig.CORSOrigins,
		Debug:       appConfig.Debug,
		Sessions:    sessionValidator,
		Users:       usersService,
		Notes:       notesService,
		Ledger:      ledger,
		Metrics:     ledgerMetrics,
		Reporter:    reporter,
		Realtime:    server.NewRealtimeDispatcher(),
		Health:      sqlDB.PingContext,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("api_prefix", appConfig.APIPrefix),
			zap.String("version", version))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			reporter.CaptureError(ctx, "http", err)
		}
		return err
	}
}

func databaseConfig(appConfig config.AppConfig) database.Config {
	return database.Config{
		DSN:         appConfig.DatabaseDSN,
		PoolSize:    appConfig.DatabasePoolSize,
		MaxOverflow: appConfig.DatabaseMaxOverflow,
		PoolTimeout: appConfig.DatabasePoolTimeout,
		Echo:        appConfig.DatabaseEcho,
	}
}

func closeDatabase(db *gorm.DB, logger *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("database close failed", zap.Error(err))
	}
}

package database

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smartnotes-ai/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	// DialectSQLite names the embedded SQLite dialect.
	DialectSQLite = "sqlite"
	// DialectPostgres names the PostgreSQL dialect.
	DialectPostgres = "postgres"

	pgUniqueViolation = "23505"
	sqlitePragmas     = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
)

var errMissingDSN = errors.New("database dsn is required")

// Config describes how to reach the relational store and size its pool.
type Config struct {
	DSN         string
	PoolSize    int
	MaxOverflow int
	PoolTimeout time.Duration
	Echo        bool
}

// Open connects to PostgreSQL when the DSN is a postgres URL and to SQLite otherwise,
// then migrates the schema.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, logger); err != nil {
		return nil, err
	}
	logger.Info("database initialized",
		zap.String("dialect", db.Dialector.Name()),
		zap.String("dsn", redactDSN(cfg.DSN)))
	return db, nil
}

// Connect opens the store and applies pool settings without touching the schema.
func Connect(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errMissingDSN
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(logger, cfg.Echo),
	}

	var (
		db  *gorm.DB
		err error
	)
	if isPostgresDSN(dsn) {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	} else {
		db, err = gorm.Open(sqlite.Open(sqliteDSN(dsn)), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if db.Dialector.Name() == DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	sqlDB.SetMaxIdleConns(poolSize)
	sqlDB.SetMaxOpenConns(poolSize + max(cfg.MaxOverflow, 0))
	if cfg.PoolTimeout > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.PoolTimeout)
	}
	return db, nil
}

// FromConn wraps an existing PostgreSQL connection, such as a mocked driver, without a ping
// or migration.
func FromConn(conn gorm.ConnPool, logger *zap.Logger) (*gorm.DB, error) {
	if conn == nil {
		return nil, errors.New("database connection is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		TranslateError:       true,
		DisableAutomaticPing: true,
		Logger:               newGormLogger(logger, false),
	})
	if err != nil {
		return nil, fmt.Errorf("database: wrap connection: %w", err)
	}
	return db, nil
}

// Migrate creates the tables, constraints and indexes, then applies named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("database: auto migrate: %w", err)
	}
	if err := db.AutoMigrate(&migrationRecord{}); err != nil {
		return fmt.Errorf("database: auto migrate: %w", err)
	}
	return applyMigrations(db, logger)
}

// IsUniqueViolation reports whether err stems from a unique or primary-key conflict.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func isPostgresDSN(dsn string) bool {
	lowered := strings.ToLower(dsn)
	return strings.HasPrefix(lowered, "postgres://") || strings.HasPrefix(lowered, "postgresql://")
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + sqlitePragmas
}

// redactDSN hides credentials before a DSN reaches the logs.
func redactDSN(dsn string) string {
	if !isPostgresDSN(dsn) {
		return dsn
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "postgres://<unparseable>"
	}
	return parsed.Redacted()
}

package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/ums/internal/models"
)

// ErrDatabaseDisabled means the process runs without a store and every
// data route must answer 503.
var ErrDatabaseDisabled = errors.New("database is disabled")

type poolSettings struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	connMaxIdleTime time.Duration
}

var postgresPool = poolSettings{
	maxOpenConns:    20,
	maxIdleConns:    10,
	connMaxLifetime: 30 * time.Minute,
	connMaxIdleTime: 5 * time.Minute,
}

// sqlite allows a single writer; one connection keeps transactions from
// tripping over "database is locked".
var sqlitePool = poolSettings{
	maxOpenConns: 1,
	maxIdleConns: 1,
}

func configurePool(sqlDB *sql.DB, p poolSettings) {
	sqlDB.SetMaxOpenConns(p.maxOpenConns)
	sqlDB.SetMaxIdleConns(p.maxIdleConns)
	sqlDB.SetConnMaxLifetime(p.connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(p.connMaxIdleTime)
}

func gormLogger(level string) logger.Interface {
	lvl := logger.Warn
	switch strings.ToLower(level) {
	case "debug":
		lvl = logger.Info
	case "error":
		lvl = logger.Error
	case "silent":
		lvl = logger.Silent
	}
	return logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
	})
}

func InitDB(ctx context.Context, cfg Config) (*gorm.DB, error) {
	switch strings.ToLower(cfg.DBDriver) {
	case "disabled", "none":
		return nil, ErrDatabaseDisabled
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "file:ums.db?_pragma=busy_timeout(5000)"
		}
		return OpenSQLite(ctx, dsn, cfg.LogLevel)
	case "", "postgres":
		if cfg.DatabaseURL == "" {
			return nil, ErrDatabaseDisabled
		}
		return open(ctx, postgres.Open(cfg.DatabaseURL), postgresPool, cfg.LogLevel, true)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

// OpenSQLite opens and migrates an sqlite database. Tests use it with an
// in-memory DSN.
func OpenSQLite(ctx context.Context, dsn, logLevel string) (*gorm.DB, error) {
	return open(ctx, sqlite.Open(dsn), sqlitePool, logLevel, false)
}

func open(ctx context.Context, dialector gorm.Dialector, pool poolSettings, logLevel string, prepare bool) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt:    prepare,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         gormLogger(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	configurePool(sqlDB, pool)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Database bootstrapping for the supported dialects (pure-Go SQLite,
// PostgreSQL, MySQL), schema migration and one-shot data fix-ups run at start.

package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/pst-admin-backend/internal/config"
	"github.com/tbourn/pst-admin-backend/internal/domain"
)

// gormConfig is shared by every dialect. Foreign keys are not created by
// migrations: the schema mirrors an existing hosted database where survey
// details outlive their survey.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	}
}

// Open connects to the configured database and, when enabled, attaches the
// OpenTelemetry tracing plugin so every query becomes a child span.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormConfig())
	case "mysql":
		db, err = gorm.Open(mysql.Open(cfg.DSN), gormConfig())
	case "sqlite", "":
		db, err = OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	configurePool(db)

	if cfg.Tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// sqlitePragmas are applied by the driver on every new connection, so each
// pooled connection gets the same busy timeout and journal settings.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// sqliteDSN appends the connection pragmas to a file path or URI.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// OpenSQLite opens or creates the database file at path. The parent
// directory must exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), gormConfig())
	if err != nil {
		return nil, err
	}
	configurePool(db)
	return db, nil
}

func configurePool(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Contact{},
		&domain.Message{},
		&domain.User{},
		&domain.Account{},
		&domain.SessionRecord{},
		&domain.Member{},
		&domain.Visitor{},
		&domain.ServiceType{},
		&domain.ServiceRequest{},
		&domain.PeriodType{},
		&domain.Period{},
		&domain.Survey{},
		&domain.SurveyDetail{},
		&domain.Activity{},
		&domain.MessageTemplate{},
		&domain.Idempotency{},
	)
}

// NormalizeLegacyTimestamps rewrites message rows whose timestamps were stored
// in epoch seconds (at most 10 digits) to milliseconds. It is safe to run on
// every start and returns the number of rows changed.
func NormalizeLegacyTimestamps(ctx context.Context, db *gorm.DB) (int64, error) {
	const maxSeconds = 9_999_999_999
	var total int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Message{}).
			Where("timestamp > 0 AND timestamp <= ?", maxSeconds).
			UpdateColumn("timestamp", gorm.Expr("timestamp * 1000"))
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected

		res = tx.Model(&domain.Message{}).
			Where("status_timestamp > 0 AND status_timestamp <= ?", maxSeconds).
			UpdateColumn("status_timestamp", gorm.Expr("status_timestamp * 1000"))
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		return nil
	})
	return total, err
}

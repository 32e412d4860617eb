package repo

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/pst-admin-backend/internal/config"
	"github.com/tbourn/pst-admin-backend/internal/domain"
)

// newTestDB opens an in-memory database private to the test (shared cache,
// named after the test) and migrates the given models.
func newTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg := gormConfig()
	cfg.Logger = logger.Discard

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if len(models) > 0 {
		require.NoError(t, db.AutoMigrate(models...))
	}
	return db
}

// newMigratedDB is newTestDB with the full schema.
func newMigratedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newTestDB(t)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t,
		"app.db?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		sqliteDSN("app.db"))
	assert.True(t, strings.HasPrefix(sqliteDSN("file:x?mode=rwc"), "file:x?mode=rwc&_pragma=journal_mode(WAL)&"))
}

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "missing", "app.db"))
	require.Error(t, err)
	assert.Nil(t, db)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenSQLite_PragmasOnEveryConnection(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)

	// Pin two connections at once so both are fresh pool members.
	ctx := context.Background()
	c1, err := sqlDB.Conn(ctx)
	require.NoError(t, err)
	defer c1.Close()
	c2, err := sqlDB.Conn(ctx)
	require.NoError(t, err)
	defer c2.Close()

	for i, conn := range []*sql.Conn{c1, c2} {
		var mode string
		var busy int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy))
		assert.Equal(t, "wal", strings.ToLower(mode), "conn %d", i)
		assert.Equal(t, 5000, busy, "conn %d", i)
	}
}

func TestAutoMigrate_CreatesEveryTable(t *testing.T) {
	db := newMigratedDB(t)
	for _, model := range []any{
		&domain.Contact{}, &domain.Message{}, &domain.User{}, &domain.Account{},
		&domain.SessionRecord{}, &domain.Member{}, &domain.Visitor{},
		&domain.ServiceType{}, &domain.ServiceRequest{}, &domain.PeriodType{},
		&domain.Period{}, &domain.Survey{}, &domain.SurveyDetail{},
		&domain.Activity{}, &domain.MessageTemplate{}, &domain.Idempotency{},
	} {
		assert.True(t, db.Migrator().HasTable(model), "%T", model)
	}
}

func TestOpen_Drivers(t *testing.T) {
	db, err := Open(config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "x.db"), Tracing: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.Close()

	_, err = Open(config.DBConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, `unsupported db driver "oracle"`)
}

func TestNormalizeLegacyTimestamps(t *testing.T) {
	db := newTestDB(t, &domain.Message{})
	ctx := context.Background()

	st := int64(1_700_000_100)
	require.NoError(t, db.Create(&[]domain.Message{
		{ID: "sec", ContactID: "c1", Direction: domain.DirectionIncoming, Timestamp: 1_700_000_000, StatusTimestamp: &st},
		{ID: "ms", ContactID: "c1", Direction: domain.DirectionIncoming, Timestamp: 1_700_000_000_000},
	}).Error)

	n, err := NormalizeLegacyTimestamps(ctx, db)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n, "timestamp and status_timestamp of the legacy row")

	var sec, ms domain.Message
	require.NoError(t, db.First(&sec, "id = ?", "sec").Error)
	require.NoError(t, db.First(&ms, "id = ?", "ms").Error)
	assert.EqualValues(t, 1_700_000_000_000, sec.Timestamp)
	require.NotNil(t, sec.StatusTimestamp)
	assert.EqualValues(t, 1_700_000_100_000, *sec.StatusTimestamp)
	assert.EqualValues(t, 1_700_000_000_000, ms.Timestamp)

	n, err = NormalizeLegacyTimestamps(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, n, "second run is a no-op")
}

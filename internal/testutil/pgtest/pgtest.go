// Package pgtest opens a throwaway postgres schema for tests that need real
// row locks and concurrent connections. Tests skip unless
// BOUKII_TEST_POSTGRES_DSN points at a database the caller may write to.
package pgtest

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/neuron-e/api-boukii-sub004/internal/migration"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const envDSN = "BOUKII_TEST_POSTGRES_DSN"

// Open migrates a fresh schema and returns a pooled handle whose sessions
// all resolve tables in it. The schema is dropped when the test ends.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(envDSN))
	if dsn == "" {
		t.Skipf("%s not set", envDSN)
	}

	admin := open(t, dsn)
	schema := fmt.Sprintf("boukii_test_%d", time.Now().UnixNano())
	if err := admin.Exec(`CREATE SCHEMA ` + schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_ = admin.Exec(`DROP SCHEMA IF EXISTS ` + schema + ` CASCADE`).Error
		if sqlDB, err := admin.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	conn := open(t, withSearchPath(dsn, schema))
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(16)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func open(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	return conn
}

func withSearchPath(dsn, schema string) string {
	if strings.Contains(dsn, "://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "search_path=" + schema
	}
	return dsn + " search_path=" + schema
}

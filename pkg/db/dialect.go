package db

import (
	"fmt"

	"github.com/neuron-e/api-boukii-sub004/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBType {
	case "mysql":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)), nil
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)), nil
	case "sqlite":
		name := cfg.DBName
		if name == "" {
			name = "boukii.db"
		}
		return sqlite.Open(name), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

// ForUpdate returns the row-lock suffix for the connected dialect. SQLite
// serializes writers at the database level and rejects the clause.
func ForUpdate(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	if conn.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}

// SetLockTimeout bounds how long the current transaction waits on row locks.
// The returned restore must run before the transaction ends: MySQL keeps the
// setting on the pooled session, so restore puts the previous value back.
func SetLockTimeout(tx *gorm.DB, timeoutMs int64) (restore func(), err error) {
	restore = func() {}
	if tx == nil || tx.Dialector == nil {
		return restore, nil
	}
	apply, undo := lockTimeoutStatements(tx.Dialector.Name(), timeoutMs)
	for _, stmt := range apply {
		if err := tx.Exec(stmt).Error; err != nil {
			return restore, err
		}
	}
	if undo != "" {
		restore = func() { _ = tx.Exec(undo).Error }
	}
	return restore, nil
}

func lockTimeoutStatements(dialect string, timeoutMs int64) (apply []string, undo string) {
	if timeoutMs <= 0 {
		return nil, ""
	}
	switch dialect {
	case "postgres":
		// SET LOCAL ends with the transaction
		return []string{fmt.Sprintf("SET LOCAL lock_timeout = %d", timeoutMs)}, ""
	case "mysql":
		seconds := max(timeoutMs/1000, 1)
		return []string{
			"SET @boukii_lock_wait_timeout = @@SESSION.innodb_lock_wait_timeout",
			fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", seconds),
		}, "SET SESSION innodb_lock_wait_timeout = @boukii_lock_wait_timeout"
	default:
		return nil, ""
	}
}

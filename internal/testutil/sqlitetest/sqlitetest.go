// Package sqlitetest opens in-memory SQLite databases carrying the booking
// schema for package tests.
package sqlitetest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open returns an isolated in-memory database with the schema applied. The
// pool is pinned to one connection so concurrent transactions queue on it
// and FOR UPDATE is never emitted; real lock races run against postgres
// through pgtest under the integration build tag.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return conn
}

func MustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// Schema mirrors the postgres migrations with SQLite column types.
var Schema = []string{
	`CREATE TABLE courses (
		id INTEGER PRIMARY KEY,
		school_id INTEGER NOT NULL,
		sport_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		intervals_config_mode TEXT NOT NULL DEFAULT 'unified',
		price NUMERIC NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'CHF',
		start_date DATETIME,
		end_date DATETIME,
		settings JSON NOT NULL DEFAULT '{}',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE course_intervals (
		id INTEGER PRIMARY KEY,
		course_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		start_date DATETIME,
		end_date DATETIME,
		config_mode TEXT NOT NULL DEFAULT 'inherit',
		date_generation_method TEXT NOT NULL DEFAULT 'consecutive',
		consecutive_days INTEGER NOT NULL DEFAULT 0,
		weekly_pattern JSON NOT NULL DEFAULT '{}',
		manual_dates JSON NOT NULL DEFAULT '[]',
		hour_start TEXT NOT NULL DEFAULT '',
		hour_end TEXT NOT NULL DEFAULT '',
		booking_mode TEXT NOT NULL DEFAULT 'package',
		display_order INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE course_dates (
		id INTEGER PRIMARY KEY,
		course_id INTEGER NOT NULL,
		course_interval_id INTEGER,
		date DATETIME NOT NULL,
		hour_start TEXT NOT NULL DEFAULT '',
		hour_end TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_course_dates_slot ON course_dates (course_id, date, hour_start, hour_end) WHERE deleted_at IS NULL`,
	`CREATE TABLE course_groups (
		id INTEGER PRIMARY KEY,
		course_id INTEGER NOT NULL,
		degree_id INTEGER NOT NULL DEFAULT 0,
		age_min INTEGER,
		age_max INTEGER,
		teacher_min_degree INTEGER,
		required_degree BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE course_subgroups (
		id INTEGER PRIMARY KEY,
		course_id INTEGER NOT NULL,
		course_group_id INTEGER NOT NULL,
		course_date_id INTEGER,
		max_participants INTEGER NOT NULL DEFAULT 0,
		monitor_id INTEGER,
		subgroup_dates_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE course_subgroup_dates (
		id INTEGER PRIMARY KEY,
		course_subgroup_id INTEGER NOT NULL,
		course_date_id INTEGER NOT NULL,
		created_at DATETIME,
		UNIQUE (course_subgroup_id, course_date_id)
	)`,
	`CREATE TABLE course_interval_groups (
		id INTEGER PRIMARY KEY,
		course_interval_id INTEGER NOT NULL,
		course_group_id INTEGER NOT NULL,
		max_participants INTEGER,
		age_min INTEGER,
		age_max INTEGER,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (course_interval_id, course_group_id)
	)`,
	`CREATE TABLE course_interval_subgroups (
		id INTEGER PRIMARY KEY,
		course_interval_group_id INTEGER NOT NULL,
		course_subgroup_id INTEGER NOT NULL,
		max_participants INTEGER,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (course_interval_group_id, course_subgroup_id)
	)`,
	`CREATE TABLE course_interval_monitors (
		id INTEGER PRIMARY KEY,
		course_interval_id INTEGER NOT NULL,
		course_subgroup_id INTEGER NOT NULL,
		monitor_id INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (course_interval_id, course_subgroup_id)
	)`,
	`CREATE TABLE course_slot_locks (
		id INTEGER PRIMARY KEY,
		course_subgroup_id INTEGER NOT NULL,
		course_date_id INTEGER NOT NULL,
		created_at DATETIME,
		UNIQUE (course_subgroup_id, course_date_id)
	)`,
	`CREATE TABLE course_discounts (
		id INTEGER PRIMARY KEY,
		course_id INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		discount_type TEXT NOT NULL,
		value NUMERIC NOT NULL,
		valid_from DATETIME,
		valid_to DATETIME,
		min_participants INTEGER NOT NULL DEFAULT 0,
		min_days INTEGER NOT NULL DEFAULT 0,
		priority INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE course_interval_discounts (
		id INTEGER PRIMARY KEY,
		course_id INTEGER NOT NULL,
		course_interval_id INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		discount_type TEXT NOT NULL,
		value NUMERIC NOT NULL,
		valid_from DATETIME,
		valid_to DATETIME,
		min_participants INTEGER NOT NULL DEFAULT 0,
		min_days INTEGER NOT NULL DEFAULT 0,
		priority INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE discount_codes (
		id INTEGER PRIMARY KEY,
		code TEXT NOT NULL,
		discount_type TEXT NOT NULL,
		value NUMERIC NOT NULL,
		total_uses INTEGER,
		remaining_uses INTEGER,
		max_uses_per_user INTEGER,
		valid_from DATETIME,
		valid_to DATETIME,
		school_ids JSON NOT NULL DEFAULT '[]',
		sport_ids JSON NOT NULL DEFAULT '[]',
		course_ids JSON NOT NULL DEFAULT '[]',
		degree_ids JSON NOT NULL DEFAULT '[]',
		client_ids JSON NOT NULL DEFAULT '[]',
		min_purchase_amount NUMERIC,
		max_discount_amount NUMERIC,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME,
		CHECK (remaining_uses IS NULL OR remaining_uses >= 0)
	)`,
	`CREATE UNIQUE INDEX ux_discount_codes_code ON discount_codes (code) WHERE deleted_at IS NULL`,
	`CREATE TABLE discount_code_usages (
		id INTEGER PRIMARY KEY,
		discount_code_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		booking_id INTEGER NOT NULL,
		amount NUMERIC NOT NULL,
		used_at DATETIME,
		released_at DATETIME
	)`,
	`CREATE TABLE bookings (
		id INTEGER PRIMARY KEY,
		school_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		client_id INTEGER NOT NULL,
		created_by INTEGER NOT NULL,
		status TEXT NOT NULL,
		participants INTEGER NOT NULL,
		days INTEGER NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		discount_type TEXT NOT NULL DEFAULT 'none',
		interval_discount_id INTEGER,
		course_discount_id INTEGER,
		discount_code_id INTEGER,
		promo_code TEXT NOT NULL DEFAULT '',
		original_price NUMERIC NOT NULL,
		discount_amount NUMERIC NOT NULL,
		final_price NUMERIC NOT NULL,
		code_status TEXT NOT NULL DEFAULT '',
		code_reason TEXT NOT NULL DEFAULT '',
		paid BOOLEAN NOT NULL DEFAULT 0,
		paid_amount NUMERIC,
		paid_at DATETIME,
		cancel_reason TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		cancelled_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE booking_users (
		id INTEGER PRIMARY KEY,
		booking_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		course_interval_id INTEGER,
		course_group_id INTEGER NOT NULL,
		course_subgroup_id INTEGER NOT NULL,
		course_date_id INTEGER NOT NULL,
		participant_id INTEGER NOT NULL,
		monitor_id INTEGER,
		status TEXT NOT NULL,
		original_price NUMERIC NOT NULL,
		discount_amount NUMERIC NOT NULL,
		final_price NUMERIC NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE INDEX ix_booking_users_slot ON booking_users (course_subgroup_id, course_date_id)`,
	`CREATE TABLE booking_price_snapshots (
		id INTEGER PRIMARY KEY,
		booking_id INTEGER NOT NULL,
		version INTEGER NOT NULL,
		payload JSON NOT NULL,
		created_at DATETIME,
		UNIQUE (booking_id, version)
	)`,
	`CREATE TABLE booking_price_audits (
		id INTEGER PRIMARY KEY,
		booking_id INTEGER NOT NULL,
		snapshot_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		diff JSON NOT NULL DEFAULT '[]',
		actor_id INTEGER,
		note TEXT NOT NULL DEFAULT '',
		created_at DATETIME
	)`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		actor_role TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata JSON NOT NULL DEFAULT '{}',
		request_id TEXT,
		correlation_id TEXT,
		created_at DATETIME
	)`,
}

package database

import (
	"context"
	"database/sql"
	"fmt"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS reservations (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		customer_name VARCHAR(255) NULL,
		customer_phone VARCHAR(64) NULL,
		vehicle_plate VARCHAR(32) NULL,
		reservation_date DATE NOT NULL,
		end_date DATE NULL,
		start_time VARCHAR(8) NULL,
		end_time VARCHAR(8) NULL,
		station_id VARCHAR(64) NULL,
		status VARCHAR(32) NULL,
		service_ids TEXT NULL,
		service_items TEXT NULL,
		original_reservation_id VARCHAR(64) NULL,
		notes TEXT NULL,
		source VARCHAR(16) NULL,
		created_by VARCHAR(255) NULL,
		confirmation_sms_sent_at DATETIME NULL,
		reminder_sms_sent_at DATETIME NULL,
		photo_urls TEXT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_reservations_tenant_date (tenant_id, reservation_date)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS services (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		shortcut VARCHAR(16) NULL,
		price_small DECIMAL(10,2) NULL,
		price_medium DECIMAL(10,2) NULL,
		price_large DECIMAL(10,2) NULL,
		INDEX idx_services_tenant (tenant_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS reservations (
		id TEXT NOT NULL PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		customer_name TEXT,
		customer_phone TEXT,
		vehicle_plate TEXT,
		reservation_date TEXT NOT NULL,
		end_date TEXT,
		start_time TEXT,
		end_time TEXT,
		station_id TEXT,
		status TEXT,
		service_ids TEXT,
		service_items TEXT,
		original_reservation_id TEXT,
		notes TEXT,
		source TEXT,
		created_by TEXT,
		confirmation_sms_sent_at TEXT,
		reminder_sms_sent_at TEXT,
		photo_urls TEXT,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%S', 'now')),
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%S', 'now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_tenant_date ON reservations(tenant_id, reservation_date)`,
	`CREATE TABLE IF NOT EXISTS services (
		id TEXT NOT NULL PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		shortcut TEXT,
		price_small REAL,
		price_medium REAL,
		price_large REAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_services_tenant ON services(tenant_id)`,
}

// EnsureSchema creates the reservations and services tables for driver
// when they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB, driver string) error {
	stmts := mysqlSchema
	if driver == DriverSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// InitSchema creates the reconciliation tables when they are absent.
// processed_records is the durable ledger; keeping it in the same
// database as the records keeps idempotence correct across multiple
// watcher instances and redeploys.
func InitSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: db is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS asset_batches (
			id      TEXT PRIMARY KEY,
			records JSONB NOT NULL DEFAULT '[]'
		);`,
		`CREATE TABLE IF NOT EXISTS partners (
			id    TEXT PRIMARY KEY,
			name  TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS donors (
			id           TEXT PRIMARY KEY,
			company_name TEXT NOT NULL DEFAULT '',
			email        TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS products (
			id       TEXT PRIMARY KEY,
			donor_id TEXT NOT NULL DEFAULT '',
			model    TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			id                     TEXT PRIMARY KEY,
			partner_id             TEXT NOT NULL DEFAULT '',
			beneficiary_request_id TEXT NOT NULL DEFAULT '',
			asset_ids              TEXT[] NOT NULL DEFAULT '{}',
			status                 TEXT NOT NULL DEFAULT '',
			order_id               TEXT NOT NULL DEFAULT '',
			shipment_id            TEXT NOT NULL DEFAULT '',
			shipping_status        TEXT NOT NULL DEFAULT '',
			verification           JSONB
		);`,
		`CREATE TABLE IF NOT EXISTS beneficiary_requests (
			id                 TEXT PRIMARY KEY,
			full_name          TEXT NOT NULL DEFAULT '',
			partner_id         TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL DEFAULT '',
			assigned_asset_ids TEXT[] NOT NULL DEFAULT '{}',
			assigned_status    TEXT NOT NULL DEFAULT '',
			assigned_at        TIMESTAMPTZ,
			verification       JSONB,
			rescheduled_from   TEXT NOT NULL DEFAULT '',
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS processed_records (
			record_id    TEXT NOT NULL,
			stage        TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (record_id, stage)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_status
			ON deliveries (status) WHERE verification IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_requests_assigned
			ON beneficiary_requests (status, assigned_status) WHERE verification IS NULL;`,
	}

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

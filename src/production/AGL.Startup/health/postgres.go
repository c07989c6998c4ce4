package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	config "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Config"
)

// ConnectPostgres opens and verifies the relational store connection.
func ConnectPostgres(cfg *config.Config, timeout time.Duration) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open PostgreSQL connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// CreateTables creates the required tables if they don't exist.
func CreateTables(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			username       TEXT NOT NULL UNIQUE,
			email          TEXT NOT NULL UNIQUE,
			password_hash  TEXT NOT NULL,
			role           TEXT NOT NULL DEFAULT 'user',
			token_version  INTEGER NOT NULL DEFAULT 0,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS farms (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			location    TEXT,
			owner_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS devices (
			id                TEXT PRIMARY KEY,
			name              TEXT NOT NULL DEFAULT '',
			serial            TEXT NOT NULL UNIQUE,
			hardware_version  TEXT,
			device_token      TEXT,
			status            TEXT NOT NULL DEFAULT 'pending',
			farm_id           TEXT REFERENCES farms(id) ON DELETE SET NULL,
			provisioned_at    TIMESTAMPTZ,
			paired_at         TIMESTAMPTZ,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS pairing_tokens (
			id          TEXT PRIMARY KEY,
			serial      TEXT NOT NULL,
			token       TEXT NOT NULL,
			expires_at  TIMESTAMPTZ NOT NULL,
			used        BOOLEAN NOT NULL DEFAULT false,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pairing_tokens_serial
			ON pairing_tokens(serial, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS sensor_configs (
			id           TEXT PRIMARY KEY,
			device_id    TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			sensor_type  TEXT NOT NULL,
			enabled      BOOLEAN NOT NULL DEFAULT true,
			mode         TEXT NOT NULL DEFAULT 'auto',
			unit         TEXT,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (device_id, sensor_type)
		);`,
		`CREATE TABLE IF NOT EXISTS sensor_thresholds (
			id                TEXT PRIMARY KEY,
			sensor_config_id  TEXT NOT NULL REFERENCES sensor_configs(id) ON DELETE CASCADE,
			level             TEXT NOT NULL,
			type              TEXT NOT NULL,
			threshold         DOUBLE PRECISION NOT NULL,
			action            TEXT NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (sensor_config_id, level, type)
		);`,
		`CREATE TABLE IF NOT EXISTS alert_logs (
			id            TEXT PRIMARY KEY,
			device_id     TEXT NOT NULL,
			sensor_type   TEXT NOT NULL,
			value         DOUBLE PRECISION NOT NULL,
			threshold     DOUBLE PRECISION NOT NULL,
			level         TEXT NOT NULL,
			direction     TEXT NOT NULL,
			action        TEXT,
			reason        TEXT NOT NULL,
			acknowledged  BOOLEAN NOT NULL DEFAULT false,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alert_logs_device
			ON alert_logs(device_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS command_logs (
			id             TEXT PRIMARY KEY,
			device_id      TEXT NOT NULL,
			command        TEXT NOT NULL,
			params         JSONB,
			source         TEXT NOT NULL,
			sensor_type    TEXT,
			reason         TEXT,
			success        BOOLEAN NOT NULL,
			error_message  TEXT,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_command_logs_device
			ON command_logs(device_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS device_schedules (
			id                TEXT PRIMARY KEY,
			name              TEXT NOT NULL,
			device_id         TEXT REFERENCES devices(id) ON DELETE CASCADE,
			farm_id           TEXT REFERENCES farms(id) ON DELETE CASCADE,
			type              TEXT NOT NULL,
			command           TEXT NOT NULL,
			params            JSONB,
			enabled           BOOLEAN NOT NULL DEFAULT true,
			execute_at        TIMESTAMPTZ,
			days_of_week      INTEGER[],
			time_of_day       TEXT,
			timezone          TEXT,
			last_executed_at  TIMESTAMPTZ,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK ((device_id IS NULL) <> (farm_id IS NULL))
		);`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return nil
}

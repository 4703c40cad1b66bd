package core

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool with conservative defaults.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	// Reasonable defaults for small services; callers can override if needed.
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	// Validate connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// EnsureSchema creates the application tables when missing. Idempotent.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS users (
	id            uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	name          text NOT NULL,
	email         text NOT NULL UNIQUE,
	password_hash text,
	google_id     text UNIQUE,
	role          text NOT NULL DEFAULT 'user',
	created_at    timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS learning_paths (
	id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id    uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title      text NOT NULL,
	topic      text NOT NULL,
	steps      jsonb NOT NULL DEFAULT '[]',
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_progress (
	user_id             uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	skill_area          text NOT NULL,
	current_level       text NOT NULL DEFAULT 'beginner',
	progress_percentage int NOT NULL DEFAULT 0,
	total_time_spent    int NOT NULL DEFAULT 0,
	completed_modules   jsonb NOT NULL DEFAULT '[]',
	streak_days         int NOT NULL DEFAULT 0,
	last_accessed_at    timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, skill_area)
);`
	_, err := db.Exec(ctx, ddl)
	return err
}

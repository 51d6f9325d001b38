package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the tables backing the user directory and API keys
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.WithComponent("database").Info("Creating database schema")

	statements := []string{
		createUsersTable,
		createAPIKeysTable,
		createAPIKeysIndexes,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return nil
}

const (
	createUsersTable = `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(100) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			roles TEXT[] NOT NULL DEFAULT '{}',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`

	createAPIKeysTable = `
		CREATE TABLE IF NOT EXISTS api_keys (
			id VARCHAR(36) PRIMARY KEY,
			key_prefix VARCHAR(16) NOT NULL,
			key_hash VARCHAR(255) NOT NULL,
			user_id BIGINT NOT NULL,
			username VARCHAR(100) NOT NULL,
			roles TEXT[] NOT NULL DEFAULT '{}',
			revoked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`

	createAPIKeysIndexes = `
		CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix) WHERE NOT revoked;`
)

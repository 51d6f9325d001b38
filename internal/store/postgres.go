package store

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/scholaris/school-gateway/pkg/database"
	"github.com/scholaris/school-gateway/pkg/interfaces"
	"github.com/scholaris/school-gateway/pkg/types"
)

// PostgresAPIKeyStore resolves keyed clients from the api_keys table
type PostgresAPIKeyStore struct {
	db *database.DB
}

// NewPostgresAPIKeyStore creates a new SQL backed API key store
func NewPostgresAPIKeyStore(db *database.DB) *PostgresAPIKeyStore {
	return &PostgresAPIKeyStore{db: db}
}

// Lookup selects the active keys sharing the presented prefix and returns the
// one whose hash matches
func (s *PostgresAPIKeyStore) Lookup(ctx context.Context, key string) (*types.APIKey, error) {
	query := `
		SELECT id, key_prefix, key_hash, user_id, username, roles, revoked, created_at
		FROM api_keys
		WHERE key_prefix = $1 AND NOT revoked`

	rows, err := s.db.QueryContext(ctx, query, KeyPrefix(key))
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			apiKey types.APIKey
			roles  pq.StringArray
		)
		if err := rows.Scan(
			&apiKey.ID,
			&apiKey.Prefix,
			&apiKey.Hash,
			&apiKey.Principal.ID,
			&apiKey.Principal.Username,
			&roles,
			&apiKey.Revoked,
			&apiKey.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}

		if VerifyKey(key, apiKey.Hash) {
			apiKey.Principal.Roles = types.NormalizeRoles(roles)
			return &apiKey, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate api keys: %w", err)
	}

	return nil, interfaces.ErrNotFound
}

// Create inserts a hashed key record
func (s *PostgresAPIKeyStore) Create(ctx context.Context, apiKey *types.APIKey) error {
	query := `
		INSERT INTO api_keys (id, key_prefix, key_hash, user_id, username, roles, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		apiKey.ID,
		apiKey.Prefix,
		apiKey.Hash,
		apiKey.Principal.ID,
		apiKey.Principal.Username,
		pq.Array(apiKey.Principal.Roles),
		apiKey.Revoked,
		apiKey.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// Ping checks database reachability
func (s *PostgresAPIKeyStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

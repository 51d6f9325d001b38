package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/scholaris/school-gateway/pkg/types"
)

// ErrNotFound is returned by stores when a key, session or record does not exist.
var ErrNotFound = errors.New("not found")

// TokenCodec issues and verifies signed identity tokens
type TokenCodec interface {
	Issue(principal types.Principal, now time.Time) (*types.AuthToken, error)
	Verify(rawToken string, now time.Time) (types.Principal, error)
}

// SessionStore holds server-side sessions keyed by session id
type SessionStore interface {
	Get(ctx context.Context, id string) (*types.Session, error)
	Put(ctx context.Context, session *types.Session) error
	Delete(ctx context.Context, id string) error
}

// APIKeyStore resolves keyed clients. Lookup verifies the presented key
// against the stored hash and returns ErrNotFound on any mismatch.
type APIKeyStore interface {
	Lookup(ctx context.Context, key string) (*types.APIKey, error)
	Create(ctx context.Context, apiKey *types.APIKey) error
}

// QuotaStore performs the atomic fixed-window increment for a client key.
// The returned window reflects the post-increment state.
type QuotaStore interface {
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (types.RateWindow, error)
}

// MaintenanceStore holds the process-wide maintenance flag
type MaintenanceStore interface {
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, enabled bool) error
}

// HealthChecker is implemented by stores that can report backend reachability
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// UserDirectory holds password accounts used by the login handler
type UserDirectory interface {
	FindByUsername(ctx context.Context, username string) (*types.User, error)
	Create(ctx context.Context, user *types.User) error
}

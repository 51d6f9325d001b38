package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"

	"github.com/scholaris/school-gateway/pkg/database"
	"github.com/scholaris/school-gateway/pkg/interfaces"
	"github.com/scholaris/school-gateway/pkg/logger"
	"github.com/scholaris/school-gateway/pkg/types"
)

// ErrUsernameTaken is returned by Create when the username already exists
var ErrUsernameTaken = errors.New("username already exists")

// UserRepository is the Postgres-backed user directory
type UserRepository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB, log *logger.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: log,
	}
}

// FindByUsername retrieves a user by username
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*types.User, error) {
	query := `
		SELECT id, username, password_hash, roles, active, created_at
		FROM users
		WHERE username = $1`

	var user types.User
	var roles pq.StringArray

	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&roles,
		&user.Active,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	user.Roles = types.NormalizeRoles(roles)
	return &user, nil
}

// Create inserts user and sets its generated id
func (r *UserRepository) Create(ctx context.Context, user *types.User) error {
	query := `
		INSERT INTO users (username, password_hash, roles, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		user.Username,
		user.PasswordHash,
		pq.Array(user.Roles),
		user.Active,
		user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.WithComponent("account").WithField("user_id", user.ID).Info("User created")
	return nil
}

// Ping checks the database
func (r *UserRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// MemoryDirectory is an in-process user directory for development and tests
type MemoryDirectory struct {
	mu     sync.RWMutex
	users  map[string]*types.User
	nextID int64
}

// NewMemoryDirectory creates an empty directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]*types.User)}
}

// FindByUsername returns a copy of the stored user
func (d *MemoryDirectory) FindByUsername(ctx context.Context, username string) (*types.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[username]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := *user
	copied.Roles = append([]string(nil), user.Roles...)
	return &copied, nil
}

// Create stores user and assigns the next id
func (d *MemoryDirectory) Create(ctx context.Context, user *types.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[user.Username]; ok {
		return ErrUsernameTaken
	}
	d.nextID++
	user.ID = d.nextID

	stored := *user
	stored.Roles = types.NormalizeRoles(user.Roles)
	d.users[user.Username] = &stored
	return nil
}

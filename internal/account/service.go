package account

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scholaris/school-gateway/internal/gateway"
	"github.com/scholaris/school-gateway/pkg/interfaces"
	"github.com/scholaris/school-gateway/pkg/logger"
	"github.com/scholaris/school-gateway/pkg/types"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9._-]{3,100}$`)

// Login is the result of a successful password login
type Login struct {
	Token   *types.AuthToken
	Session *types.Session
}

// Service authenticates directory users and manages their sessions
type Service struct {
	directory  interfaces.UserDirectory
	passwords  *PasswordManager
	codec      interfaces.TokenCodec
	sessions   interfaces.SessionStore
	sessionTTL time.Duration
	logger     *logger.Logger
	now        func() time.Time

	// verified against for unknown usernames
	decoyHash string
}

// NewService creates the account service. sessions may be nil, in which case
// login issues tokens only.
func NewService(directory interfaces.UserDirectory, passwords *PasswordManager, codec interfaces.TokenCodec, sessions interfaces.SessionStore, sessionTTL time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	decoy, _ := passwords.HashPassword(uuid.NewString())
	return &Service{
		directory:  directory,
		passwords:  passwords,
		codec:      codec,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		logger:     log,
		now:        time.Now,
		decoyHash:  decoy,
	}
}

// Login verifies credentials and issues a token and, when a session store is
// configured, a server-side session
func (s *Service) Login(ctx context.Context, credentials types.Credentials) (*Login, error) {
	username := strings.ToLower(strings.TrimSpace(credentials.Username))
	if username == "" || credentials.Password == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "username and password are required", nil)
	}

	user, err := s.directory.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return nil, gateway.StoreFailure("user directory lookup failed", err)
	}

	hash := s.decoyHash
	if user != nil {
		hash = user.PasswordHash
	}
	valid, err := s.passwords.VerifyPassword(hash, credentials.Password)
	if err != nil || user == nil || !valid {
		s.logger.Audit(ctx, username, "login", "auth", false, nil)
		return nil, types.NewAuthenticationError(ErrCodeInvalidCredentials, "invalid username or password")
	}

	if !user.Active {
		s.logger.Audit(ctx, username, "login", "auth", false, map[string]interface{}{"reason": "inactive"})
		return nil, types.NewAuthorizationError(ErrCodeUserInactive, "user account is inactive")
	}

	now := s.now()
	principal := user.Principal()

	token, err := s.codec.Issue(principal, now)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to issue token", err)
	}

	login := &Login{Token: token}
	if s.sessions != nil {
		session := &types.Session{
			ID:        uuid.NewString(),
			Principal: principal,
			CreatedAt: now,
			ExpiresAt: now.Add(s.sessionTTL),
		}
		if err := s.sessions.Put(ctx, session); err != nil {
			return nil, gateway.StoreFailure("failed to store session", err)
		}
		login.Session = session
	}

	s.logger.Audit(ctx, username, "login", "auth", true, map[string]interface{}{"user_id": user.ID})
	return login, nil
}

// Register creates an active account without roles. Roles are granted by an
// administrator out of band.
func (s *Service) Register(ctx context.Context, credentials types.Credentials) (*types.User, error) {
	username := strings.ToLower(strings.TrimSpace(credentials.Username))
	if !usernamePattern.MatchString(username) {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "username must be 3-100 characters of a-z, 0-9, '.', '_' or '-'", nil)
	}
	if len(credentials.Password) < MinPasswordLength {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "password is too short",
			map[string]interface{}{"min_length": MinPasswordLength})
	}

	hash, err := s.passwords.HashPassword(credentials.Password)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to hash password", err)
	}

	user := &types.User{
		Username:     username,
		PasswordHash: hash,
		Roles:        []string{},
		Active:       true,
		CreatedAt:    s.now(),
	}
	if err := s.directory.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, types.NewValidationError(ErrCodeUsernameTaken, "username already exists", nil)
		}
		return nil, gateway.StoreFailure("failed to create user", err)
	}

	s.logger.Audit(ctx, username, "register", "auth", true, map[string]interface{}{"user_id": user.ID})
	return user, nil
}

// Logout deletes sessionID when it belongs to principal
func (s *Service) Logout(ctx context.Context, principal types.Principal, sessionID string) error {
	if s.sessions == nil || sessionID == "" {
		return nil
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil
	}
	if err != nil {
		return gateway.StoreFailure("session lookup failed", err)
	}
	if session.Principal.ID != principal.ID {
		return nil
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return gateway.StoreFailure("failed to delete session", err)
	}

	s.logger.Audit(ctx, principal.Username, "logout", "auth", true, nil)
	return nil
}

// Refresh issues a new token for an already authenticated principal
func (s *Service) Refresh(principal types.Principal) (*types.AuthToken, error) {
	token, err := s.codec.Issue(principal, s.now())
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to issue token", err)
	}
	return token, nil
}

// Error codes specific to the account flow
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUserInactive       = "USER_INACTIVE"
	ErrCodeUsernameTaken      = "USERNAME_EXISTS"
)

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/scholaris/school-gateway/pkg/interfaces"
	"github.com/scholaris/school-gateway/pkg/monitoring"
	"github.com/scholaris/school-gateway/pkg/types"
)

// ErrCredentialRejected marks a credential that was checked and found invalid,
// as opposed to one that could not be checked.
var ErrCredentialRejected = errors.New("credential rejected")

// Authenticator validates one credential scheme
type Authenticator interface {
	Authenticate(ctx context.Context, value string, now time.Time) (types.Principal, error)
}

// AuthenticatorFunc adapts a function to Authenticator
type AuthenticatorFunc func(ctx context.Context, value string, now time.Time) (types.Principal, error)

// Authenticate calls f
func (f AuthenticatorFunc) Authenticate(ctx context.Context, value string, now time.Time) (types.Principal, error) {
	return f(ctx, value, now)
}

// BearerAuthenticator verifies signed tokens. It never touches a store.
func BearerAuthenticator(codec interfaces.TokenCodec) Authenticator {
	return AuthenticatorFunc(func(ctx context.Context, value string, now time.Time) (types.Principal, error) {
		principal, err := codec.Verify(value, now)
		if err != nil {
			return types.Principal{}, fmt.Errorf("%w: %w", ErrCredentialRejected, err)
		}
		return principal, nil
	})
}

// APIKeyAuthenticator resolves keyed clients through the API key store
func APIKeyAuthenticator(keys interfaces.APIKeyStore) Authenticator {
	return AuthenticatorFunc(func(ctx context.Context, value string, now time.Time) (types.Principal, error) {
		apiKey, err := keys.Lookup(ctx, value)
		if errors.Is(err, interfaces.ErrNotFound) {
			return types.Principal{}, ErrCredentialRejected
		}
		if err != nil {
			return types.Principal{}, err
		}
		return apiKey.Principal, nil
	})
}

// SessionAuthenticator resolves server-side sessions
func SessionAuthenticator(sessions interfaces.SessionStore) Authenticator {
	return AuthenticatorFunc(func(ctx context.Context, value string, now time.Time) (types.Principal, error) {
		session, err := sessions.Get(ctx, value)
		if errors.Is(err, interfaces.ErrNotFound) {
			return types.Principal{}, ErrCredentialRejected
		}
		if err != nil {
			return types.Principal{}, err
		}
		if session.Expired(now) || session.Principal.IsAnonymous() {
			return types.Principal{}, ErrCredentialRejected
		}
		return session.Principal, nil
	})
}

// Resolution is the outcome of a successful identity resolution
type Resolution struct {
	Principal  types.Principal
	Credential types.Credential
}

// Resolver tries credential candidates in precedence order; the first one
// that validates wins
type Resolver struct {
	authenticators map[types.CredentialKind]Authenticator
	timeout        time.Duration
	metrics        *monitoring.MetricsCollector
}

// NewResolver wires the three schemes. A nil store disables its scheme.
func NewResolver(codec interfaces.TokenCodec, keys interfaces.APIKeyStore, sessions interfaces.SessionStore, timeout time.Duration) *Resolver {
	r := &Resolver{
		authenticators: make(map[types.CredentialKind]Authenticator),
		timeout:        timeout,
	}
	if codec != nil {
		r.authenticators[types.CredentialBearer] = BearerAuthenticator(codec)
	}
	if keys != nil {
		r.authenticators[types.CredentialAPIKey] = APIKeyAuthenticator(keys)
	}
	if sessions != nil {
		r.authenticators[types.CredentialSession] = SessionAuthenticator(sessions)
	}
	return r
}

// WithAuthenticator replaces the authenticator for kind
func (r *Resolver) WithAuthenticator(kind types.CredentialKind, auth Authenticator) *Resolver {
	r.authenticators[kind] = auth
	return r
}

// WithMetrics records each authentication attempt
func (r *Resolver) WithMetrics(metrics *monitoring.MetricsCollector) *Resolver {
	r.metrics = metrics
	return r
}

// Resolve returns the first principal any candidate validates to. A store
// failure stops resolution instead of falling through to weaker schemes.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials, now time.Time) (*Resolution, error) {
	for _, cred := range creds {
		auth, ok := r.authenticators[cred.Kind]
		if !ok || cred.Value == "" {
			continue
		}

		principal, err := r.authenticate(ctx, auth, cred.Value, now)
		switch {
		case err == nil:
			r.record(cred.Kind, "success")
			return &Resolution{Principal: principal, Credential: cred}, nil
		case errors.Is(err, ErrCredentialRejected):
			r.record(cred.Kind, "rejected")
			continue
		default:
			r.record(cred.Kind, "error")
			return nil, StoreFailure("identity store lookup failed", err)
		}
	}

	return nil, types.NewAuthenticationError(types.ErrCodeUnauthenticated, "authentication required")
}

func (r *Resolver) authenticate(ctx context.Context, auth Authenticator, value string, now time.Time) (types.Principal, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return auth.Authenticate(ctx, value, now)
}

func (r *Resolver) record(kind types.CredentialKind, status string) {
	if r.metrics != nil {
		r.metrics.RecordAuthAttempt(string(kind), status)
	}
}

// StoreFailure maps a backing store error to 503 on timeout and 500 otherwise
func StoreFailure(message string, err error) *types.GatewayError {
	if isTimeout(err) {
		return types.NewUnavailableError(types.ErrCodeStoreUnavailable, "service temporarily unavailable", err)
	}
	return types.NewInternalError(types.ErrCodeInternalError, message, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/scholaris/school-gateway/pkg/config"
	"github.com/scholaris/school-gateway/pkg/types"
)

// Token verification failures. All of them collapse to 401 at the HTTP
// boundary; the distinction exists for logs and metrics only.
var (
	ErrTokenMalformed     = errors.New("token malformed")
	ErrTokenBadSignature  = errors.New("token signature invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenNotYetValid   = errors.New("token not yet valid")
	ErrTokenInvalidClaims = errors.New("token claims invalid")
)

// TokenSubject is the principal embedded in the "data" claim
type TokenSubject struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Role     string   `json:"role"`
	Roles    []string `json:"roles,omitempty"`
}

// TokenClaims represents the signed token claims
type TokenClaims struct {
	Data TokenSubject `json:"data"`
	jwt.RegisteredClaims
}

// JWTCodec issues and verifies HS256 identity tokens
type JWTCodec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewJWTCodec creates a codec from the token configuration
func NewJWTCodec(cfg *config.JWTConfig) *JWTCodec {
	ttl := cfg.TokenTTLDuration()
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTCodec{
		secret:   []byte(cfg.SecretKey),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
	}
}

// Issue signs a token for principal valid from now for the configured TTL
func (c *JWTCodec) Issue(principal types.Principal, now time.Time) (*types.AuthToken, error) {
	now = now.Truncate(time.Second)
	expiresAt := now.Add(c.ttl)

	claims := &TokenClaims{
		Data: TokenSubject{
			ID:       principal.ID,
			Username: principal.Username,
			Role:     principal.PrimaryRole(),
			Roles:    principal.Roles,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &types.AuthToken{
		AccessToken: tokenString,
		TokenType:   "Bearer",
		ExpiresIn:   int64(c.ttl / time.Second),
		IssuedAt:    now,
		ExpiresAt:   expiresAt,
	}, nil
}

// Verify checks the signature first and then the validity window, issuer and
// audience, returning the embedded principal
func (c *JWTCodec) Verify(rawToken string, now time.Time) (types.Principal, error) {
	now = now.Truncate(time.Second)

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
	)

	claims := &TokenClaims{}
	_, err := parser.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return types.Principal{}, classifyTokenError(err)
	}

	if claims.NotBefore == nil {
		return types.Principal{}, ErrTokenInvalidClaims
	}
	if claims.Data.ID <= 0 || claims.Data.Username == "" {
		return types.Principal{}, ErrTokenInvalidClaims
	}

	roles := claims.Data.Roles
	if len(roles) == 0 && claims.Data.Role != "" {
		roles = []string{claims.Data.Role}
	}

	return types.NewPrincipal(claims.Data.ID, claims.Data.Username, roles...), nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrTokenNotYetValid
	default:
		return ErrTokenInvalidClaims
	}
}

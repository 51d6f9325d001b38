package gateway

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/scholaris/school-gateway/pkg/config"
	"github.com/scholaris/school-gateway/pkg/types"
)

func newTestCodec() *JWTCodec {
	return NewJWTCodec(&config.JWTConfig{
		SecretKey: testSecret,
		TokenTTL:  86400,
		Issuer:    "school-gateway",
		Audience:  "school-clients",
	})
}

func signClaims(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("Failed to sign test token: %v", err)
	}
	return token
}

func TestJWTCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec()
	now := time.Unix(1700000000, 0)
	principal := types.NewPrincipal(42, "wanjiru", types.RoleTeacher, types.RoleParent)

	token, err := codec.Issue(principal, now)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	if token.TokenType != "Bearer" {
		t.Errorf("Expected token type Bearer, got %s", token.TokenType)
	}
	if token.ExpiresIn != 86400 {
		t.Errorf("Expected expires_in 86400, got %d", token.ExpiresIn)
	}
	if !token.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("Expected expiry %v, got %v", now.Add(24*time.Hour), token.ExpiresAt)
	}

	got, err := codec.Verify(token.AccessToken, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Failed to verify valid token: %v", err)
	}
	if !reflect.DeepEqual(got, principal) {
		t.Errorf("Expected principal %+v, got %+v", principal, got)
	}
}

func TestJWTCodec_WireClaims(t *testing.T) {
	codec := newTestCodec()
	now := time.Unix(1700000000, 0)

	token, err := codec.Issue(types.NewPrincipal(7, "otieno", types.RoleBursar), now)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	claims := &TokenClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token.AccessToken, claims)
	if err != nil {
		t.Fatalf("Failed to decode token: %v", err)
	}

	if claims.Issuer != "school-gateway" {
		t.Errorf("Expected iss school-gateway, got %s", claims.Issuer)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "school-clients" {
		t.Errorf("Expected aud school-clients, got %v", claims.Audience)
	}
	if claims.IssuedAt.Unix() != now.Unix() || claims.NotBefore.Unix() != now.Unix() {
		t.Errorf("Expected iat and nbf %d, got %d and %d", now.Unix(), claims.IssuedAt.Unix(), claims.NotBefore.Unix())
	}
	if claims.Data.ID != 7 || claims.Data.Username != "otieno" || claims.Data.Role != types.RoleBursar {
		t.Errorf("Unexpected data claim: %+v", claims.Data)
	}
}

func TestJWTCodec_ValidityWindow(t *testing.T) {
	codec := newTestCodec()
	issued := time.Unix(1700000000, 0)

	token, err := codec.Issue(types.NewPrincipal(1, "admin", types.RoleAdmin), issued)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	expiry := issued.Add(24 * time.Hour)

	tests := []struct {
		name    string
		now     time.Time
		wantErr error
	}{
		{"at issue time", issued, nil},
		{"one second before expiry", expiry.Add(-time.Second), nil},
		{"sub-second before expiry", expiry.Add(-400 * time.Millisecond), nil},
		{"at expiry second", expiry, ErrTokenExpired},
		{"after expiry", expiry.Add(time.Hour), ErrTokenExpired},
		{"before not-before", issued.Add(-time.Second), ErrTokenNotYetValid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Verify(token.AccessToken, tt.now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestJWTCodec_Rejections(t *testing.T) {
	codec := newTestCodec()
	now := time.Unix(1700000000, 0)

	validClaims := func() *TokenClaims {
		return &TokenClaims{
			Data: TokenSubject{ID: 3, Username: "kamau", Role: types.RoleTeacher},
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "school-gateway",
				Audience:  jwt.ClaimStrings{"school-clients"},
				IssuedAt:  jwt.NewNumericDate(now),
				NotBefore: jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
	}

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"

	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"other-app"}

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	noSubject := validClaims()
	noSubject.Data = TokenSubject{}

	good := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())
	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"empty", "", ErrTokenMalformed},
		{"garbage", "not-a-token", ErrTokenMalformed},
		{"wrong secret", signClaims(t, jwt.SigningMethodHS256, []byte("another-secret-of-sufficient-length"), validClaims()), ErrTokenBadSignature},
		{"tampered signature", tampered, ErrTokenBadSignature},
		{"other hmac algorithm", signClaims(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims()), ErrTokenBadSignature},
		{"unsigned", signClaims(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims()), ErrTokenBadSignature},
		{"wrong issuer", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), wrongIssuer), ErrTokenInvalidClaims},
		{"wrong audience", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), wrongAudience), ErrTokenInvalidClaims},
		{"missing expiry", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), noExpiry), ErrTokenInvalidClaims},
		{"missing subject", signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), noSubject), ErrTokenInvalidClaims},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Verify(tt.token, now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestJWTCodec_SingleRoleClaim(t *testing.T) {
	codec := newTestCodec()
	now := time.Unix(1700000000, 0)

	token := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), &TokenClaims{
		Data: TokenSubject{ID: 5, Username: "njeri", Role: "Registrar"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "school-gateway",
			Audience:  jwt.ClaimStrings{"school-clients"},
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})

	principal, err := codec.Verify(token, now)
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}
	if !reflect.DeepEqual(principal.Roles, []string{types.RoleRegistrar}) {
		t.Errorf("Expected roles [registrar], got %v", principal.Roles)
	}
}

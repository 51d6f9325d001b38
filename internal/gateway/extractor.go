package gateway

import (
	"net/http"
	"strings"

	"github.com/scholaris/school-gateway/pkg/config"
	"github.com/scholaris/school-gateway/pkg/types"
)

// Credentials are the candidates found on a request, in precedence order
type Credentials []types.Credential

// Primary returns the highest precedence candidate
func (c Credentials) Primary() (types.Credential, bool) {
	if len(c) == 0 {
		return types.Credential{}, false
	}
	return c[0], true
}

// Find returns the candidate of the given kind, if present
func (c Credentials) Find(kind types.CredentialKind) (types.Credential, bool) {
	for _, cred := range c {
		if cred.Kind == kind {
			return cred, true
		}
	}
	return types.Credential{}, false
}

// Extractor pulls credential material out of a request. It has no side
// effects and never validates what it finds.
type Extractor struct {
	apiKeyHeader  string
	sessionCookie string
}

// NewExtractor creates an extractor for the configured header and cookie names
func NewExtractor(cfg *config.AuthConfig) *Extractor {
	e := &Extractor{apiKeyHeader: cfg.APIKeyHeader, sessionCookie: cfg.SessionCookie}
	if e.apiKeyHeader == "" {
		e.apiKeyHeader = "X-API-Key"
	}
	if e.sessionCookie == "" {
		e.sessionCookie = "session_id"
	}
	return e
}

// SessionCookie is the cookie name carrying the session id
func (e *Extractor) SessionCookie() string {
	return e.sessionCookie
}

// Extract returns bearer, API key and session candidates in that order
func (e *Extractor) Extract(r *http.Request) Credentials {
	var creds Credentials
	query := r.URL.Query()

	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		creds = append(creds, types.Credential{Kind: types.CredentialBearer, Value: token})
	} else if token := strings.TrimSpace(query.Get("token")); token != "" {
		creds = append(creds, types.Credential{Kind: types.CredentialBearer, Value: token})
	}

	if key := strings.TrimSpace(r.Header.Get(e.apiKeyHeader)); key != "" {
		creds = append(creds, types.Credential{Kind: types.CredentialAPIKey, Value: key})
	} else if key := strings.TrimSpace(query.Get("api_key")); key != "" {
		creds = append(creds, types.Credential{Kind: types.CredentialAPIKey, Value: key})
	}

	if cookie, err := r.Cookie(e.sessionCookie); err == nil && cookie.Value != "" {
		creds = append(creds, types.Credential{Kind: types.CredentialSession, Value: cookie.Value})
	}

	return creds
}

// bearerToken parses "Bearer <token>" with a case-insensitive scheme
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

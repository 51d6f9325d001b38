package store

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/scholaris/school-gateway/pkg/types"
)

// prefixLength is the number of leading key characters stored in clear for lookup
const prefixLength = 8

// KeyPrefix returns the indexable prefix of a raw API key
func KeyPrefix(key string) string {
	if len(key) < prefixLength {
		return key
	}
	return key[:prefixLength]
}

// HashKey hashes a raw API key with bcrypt at the given cost
func HashKey(key string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}

// VerifyKey reports whether key matches hash
func VerifyKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// GenerateAPIKey creates a random key bound to principal. The raw key is
// returned once; only its hash is kept on the record.
func GenerateAPIKey(principal types.Principal, cost int, now time.Time) (string, *types.APIKey, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate key: %w", err)
	}

	key := base64.RawURLEncoding.EncodeToString(keyBytes)
	hash, err := HashKey(key, cost)
	if err != nil {
		return "", nil, err
	}

	return key, &types.APIKey{
		ID:        uuid.New().String(),
		Prefix:    KeyPrefix(key),
		Hash:      hash,
		Principal: principal,
		CreatedAt: now.UTC(),
	}, nil
}

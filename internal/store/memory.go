// Package store holds the backing stores the gateway reads on every request:
// sessions, API keys, quota windows and the maintenance flag. Each store has
// an in-process implementation for single-instance deployments and a shared
// implementation (Redis or PostgreSQL) for multi-instance ones.
package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scholaris/school-gateway/pkg/interfaces"
	"github.com/scholaris/school-gateway/pkg/types"
)

// MemorySessionStore keeps sessions in a map guarded by a RWMutex
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
	now      func() time.Time
}

// NewMemorySessionStore creates an empty session store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*types.Session),
		now:      time.Now,
	}
}

// Get returns the session or interfaces.ErrNotFound. Expired sessions are
// removed on read.
func (s *MemorySessionStore) Get(ctx context.Context, id string) (*types.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, interfaces.ErrNotFound
	}

	if session.Expired(s.now()) {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return nil, interfaces.ErrNotFound
	}

	copied := *session
	return &copied, nil
}

// Put stores or replaces a session
func (s *MemorySessionStore) Put(ctx context.Context, session *types.Session) error {
	copied := *session

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = &copied
	return nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// MemoryAPIKeyStore keeps hashed API keys indexed by prefix
type MemoryAPIKeyStore struct {
	mu       sync.RWMutex
	byPrefix map[string][]*types.APIKey
}

// NewMemoryAPIKeyStore creates an empty API key store
func NewMemoryAPIKeyStore() *MemoryAPIKeyStore {
	return &MemoryAPIKeyStore{byPrefix: make(map[string][]*types.APIKey)}
}

// Lookup finds the non-revoked key whose hash matches the presented key
func (s *MemoryAPIKeyStore) Lookup(ctx context.Context, key string) (*types.APIKey, error) {
	s.mu.RLock()
	candidates := s.byPrefix[KeyPrefix(key)]
	s.mu.RUnlock()

	for _, candidate := range candidates {
		if candidate.Revoked {
			continue
		}
		if VerifyKey(key, candidate.Hash) {
			copied := *candidate
			return &copied, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

// Create stores a hashed key record
func (s *MemoryAPIKeyStore) Create(ctx context.Context, apiKey *types.APIKey) error {
	copied := *apiKey

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPrefix[apiKey.Prefix] = append(s.byPrefix[apiKey.Prefix], &copied)
	return nil
}

// MemoryQuotaStore is a fixed-window counter map. A single mutex makes the
// read-modify-write atomic per key.
type MemoryQuotaStore struct {
	mu      sync.Mutex
	windows map[string]*types.RateWindow
}

// NewMemoryQuotaStore creates an empty quota store
func NewMemoryQuotaStore() *MemoryQuotaStore {
	return &MemoryQuotaStore{windows: make(map[string]*types.RateWindow)}
}

// Increment counts one hit for key and returns the post-increment window
func (s *MemoryQuotaStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (types.RateWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.Sub(w.WindowStart) > window {
		w = &types.RateWindow{ClientKey: key, WindowStart: now, Count: 0}
		s.windows[key] = w
	}
	w.Count++

	return *w, nil
}

// MemoryMaintenanceStore is the process-wide maintenance flag
type MemoryMaintenanceStore struct {
	enabled atomic.Bool
}

// NewMemoryMaintenanceStore creates a flag with the given initial state
func NewMemoryMaintenanceStore(enabled bool) *MemoryMaintenanceStore {
	s := &MemoryMaintenanceStore{}
	s.enabled.Store(enabled)
	return s
}

// Enabled reports the current flag
func (s *MemoryMaintenanceStore) Enabled(ctx context.Context) (bool, error) {
	return s.enabled.Load(), nil
}

// SetEnabled sets the flag
func (s *MemoryMaintenanceStore) SetEnabled(ctx context.Context, enabled bool) error {
	s.enabled.Store(enabled)
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scholaris/school-gateway/pkg/config"
	"github.com/scholaris/school-gateway/pkg/interfaces"
	"github.com/scholaris/school-gateway/pkg/types"
)

// quotaScript resets the window when it is older than ARGV[2] milliseconds and
// otherwise increments it. Returns {window_start_ms, count}.
var quotaScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local start = tonumber(redis.call("HGET", KEYS[1], "start"))
if start == nil or now - start > window then
  redis.call("HSET", KEYS[1], "start", now, "count", 1)
  redis.call("PEXPIRE", KEYS[1], window * 2)
  return {now, 1}
end
local count = redis.call("HINCRBY", KEYS[1], "count", 1)
return {start, count}
`)

// NewRedisClient creates a client from configuration
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisQuotaStore shares quota windows between gateway instances
type RedisQuotaStore struct {
	client *redis.Client
	prefix string
}

// NewRedisQuotaStore creates a quota store; keys are namespaced by prefix
func NewRedisQuotaStore(client *redis.Client, prefix string) *RedisQuotaStore {
	return &RedisQuotaStore{client: client, prefix: prefix + "quota:"}
}

// Increment atomically counts one hit for key
func (s *RedisQuotaStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (types.RateWindow, error) {
	res, err := quotaScript.Run(ctx, s.client, []string{s.prefix + key}, now.UnixMilli(), window.Milliseconds()).Int64Slice()
	if err != nil {
		return types.RateWindow{}, fmt.Errorf("quota increment failed: %w", err)
	}
	if len(res) != 2 {
		return types.RateWindow{}, fmt.Errorf("quota increment returned %d values", len(res))
	}

	return types.RateWindow{
		ClientKey:   key,
		WindowStart: time.UnixMilli(res[0]),
		Count:       res[1],
	}, nil
}

// Ping checks Redis reachability
func (s *RedisQuotaStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// RedisSessionStore keeps JSON encoded sessions with a TTL matching their expiry
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisSessionStore creates a session store
func NewRedisSessionStore(client *redis.Client, prefix string) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: prefix + "session:", now: time.Now}
}

// Get loads a session or returns interfaces.ErrNotFound
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*types.Session, error) {
	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}

	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if session.Expired(s.now()) {
		return nil, interfaces.ErrNotFound
	}
	return &session, nil
}

// Put stores a session until its expiry
func (s *RedisSessionStore) Put(ctx context.Context, session *types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	var ttl time.Duration
	if !session.ExpiresAt.IsZero() {
		ttl = session.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return nil
		}
	}

	if err := s.client.Set(ctx, s.prefix+session.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Delete removes a session
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// RedisMaintenanceStore keeps the maintenance flag in a single key so every
// instance observes the same state
type RedisMaintenanceStore struct {
	client *redis.Client
	key    string
}

// NewRedisMaintenanceStore creates a flag store
func NewRedisMaintenanceStore(client *redis.Client, prefix string) *RedisMaintenanceStore {
	return &RedisMaintenanceStore{client: client, key: prefix + "maintenance"}
}

// Enabled reports the flag; a missing key means disabled
func (s *RedisMaintenanceStore) Enabled(ctx context.Context) (bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("maintenance lookup failed: %w", err)
	}
	return val == "1", nil
}

// SetEnabled sets the flag
func (s *RedisMaintenanceStore) SetEnabled(ctx context.Context, enabled bool) error {
	val := "0"
	if enabled {
		val = "1"
	}
	if err := s.client.Set(ctx, s.key, val, 0).Err(); err != nil {
		return fmt.Errorf("failed to set maintenance flag: %w", err)
	}
	return nil
}

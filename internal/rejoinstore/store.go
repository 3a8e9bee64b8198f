package rejoinstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Handle is the remembered identity a participant needs to rejoin a
// session after a restart.
type Handle struct {
	JoinCode  string    `json:"join_code"`
	UserID    uuid.UUID `json:"user_id"`
	SessionID uuid.UUID `json:"session_id"`
	SavedAt   time.Time `json:"saved_at"`
}

// Store persists rejoin handles across client restarts.
type Store interface {
	Save(ctx context.Context, handle Handle) error
	Load(ctx context.Context, userID uuid.UUID) (*Handle, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

// RedisStore keeps handles as JSON blobs with a TTL, so abandoned sessions
// age out on their own.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed handle store.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "rejoin_store").Logger(),
	}
}

func handleKey(userID uuid.UUID) string {
	return fmt.Sprintf("rejoin:handle:%s", userID.String())
}

// Save stores the handle, replacing any previous one for the user.
func (s *RedisStore) Save(ctx context.Context, handle Handle) error {
	data, err := json.Marshal(handle)
	if err != nil {
		return fmt.Errorf("marshal handle: %w", err)
	}
	return s.redis.Set(ctx, handleKey(handle.UserID), data, s.ttl).Err()
}

// Load fetches the remembered handle, or nil when none exists.
func (s *RedisStore) Load(ctx context.Context, userID uuid.UUID) (*Handle, error) {
	data, err := s.redis.Get(ctx, handleKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get handle: %w", err)
	}

	var handle Handle
	if err := json.Unmarshal(data, &handle); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("discarding corrupted rejoin handle")
		return nil, nil
	}
	return &handle, nil
}

// Clear forgets the handle.
func (s *RedisStore) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.redis.Del(ctx, handleKey(userID)).Err()
}

// MemoryStore is the in-process fallback used when no Redis is configured.
type MemoryStore struct {
	mu      sync.Mutex
	handles map[uuid.UUID]Handle
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{handles: map[uuid.UUID]Handle{}}
}

func (s *MemoryStore) Save(ctx context.Context, handle Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[handle.UserID] = handle
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, userID uuid.UUID) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handle, ok := s.handles[userID]; ok {
		return &handle, nil
	}
	return nil, nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, userID)
	return nil
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// Store persists the signed-in identity of a browser session so it survives
// page reloads and server restarts
type Store interface {
	// Load returns nil, nil when nothing is stored for sid
	Load(ctx context.Context, sid string) (*model.Identity, error)
	Save(ctx context.Context, sid string, ident model.Identity) error
	Delete(ctx context.Context, sid string) error
}

// MemoryStore keeps identities in process memory
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]model.Identity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]model.Identity)}
}

func (s *MemoryStore) Load(ctx context.Context, sid string) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.items[sid]
	if !ok {
		return nil, nil
	}
	return &ident, nil
}

func (s *MemoryStore) Save(ctx context.Context, sid string, ident model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sid] = ident
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, sid)
	return nil
}

const redisKeyPrefix = "portal:session:"

// RedisStore keeps identities in Redis with a sliding TTL
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store on client; a zero ttl keeps keys forever
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisStoreFromURL parses a redis:// URL and checks the server is reachable
func NewRedisStoreFromURL(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStore(client, ttl), nil
}

func (s *RedisStore) Load(ctx context.Context, sid string) (*model.Identity, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+sid).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	var ident model.Identity
	if err := json.Unmarshal(raw, &ident); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if s.ttl > 0 {
		s.client.Expire(ctx, redisKeyPrefix+sid, s.ttl)
	}
	return &ident, nil
}

func (s *RedisStore) Save(ctx context.Context, sid string, ident model.Identity) error {
	raw, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+sid, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+sid).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Repository persists sessions between requests.
type Repository interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// SessionKey is the Redis key of a cart session.
func SessionKey(id string) string { return "cart:session:" + id }

// RedisRepository stores sessions as JSON documents with an expiry.
type RedisRepository struct {
	Client *redis.Client
}

// NewRedisRepository wraps client.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{Client: client}
}

// Load returns ErrNotFound when the session does not exist or has expired.
func (r *RedisRepository) Load(ctx context.Context, id string) (*Session, error) {
	if r == nil || r.Client == nil {
		return nil, errors.New("cart repository not configured")
	}
	data, err := r.Client.Get(ctx, SessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return &s, nil
}

// Save writes the session and refreshes its expiry.
func (r *RedisRepository) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	if r == nil || r.Client == nil {
		return errors.New("cart repository not configured")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := r.Client.Set(ctx, SessionKey(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// Delete removes the session.
func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.Client == nil {
		return errors.New("cart repository not configured")
	}
	return r.Client.Del(ctx, SessionKey(id)).Err()
}

// MemoryRepository keeps sessions in process memory. Expiry is not enforced.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*Session)}
}

func (m *MemoryRepository) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryRepository) Save(_ context.Context, s *Session, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions == nil {
		m.sessions = make(map[string]*Session)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

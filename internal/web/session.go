package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calvinalkan/docbase/internal/engine"
)

// Session is the per-browser state the boundary keeps between requests: the
// anti-forgery token and at most one notification waiting to be shown.
type Session struct {
	CSRFToken string         `json:"csrf_token"`
	Notice    *engine.Notice `json:"notice,omitempty"`
}

// SessionStore persists sessions by id. Get returns nil, nil for unknown or
// expired ids.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, id string, s *Session) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process memory. Sessions expire ttl after
// their last Put.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	session Session
	expires time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}

	if !m.now().Before(e.expires) {
		delete(m.entries, id)

		return nil, nil
	}

	s := e.session

	return &s, nil
}

func (m *MemoryStore) Put(_ context.Context, id string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[id] = memoryEntry{session: *s, expires: m.now().Add(m.ttl)}

	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, id)

	return nil
}

// RedisStore keeps sessions in Redis as JSON under "<prefix><id>" with a TTL
// refreshed on every Put.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a RedisStore. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "kb:session:"
	}

	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	b, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("get session: %w", err)
	}

	var s Session

	err = json.Unmarshal(b, &s)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return &s, nil
}

func (r *RedisStore) Put(ctx context.Context, id string, s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	err = r.client.Set(ctx, r.key(id), b, r.ttl).Err()
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}

	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	err := r.client.Del(ctx, r.key(id)).Err()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

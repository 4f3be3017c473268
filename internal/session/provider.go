package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/bizstore/internal/shared"
)

// Identity is the write credential held by this device.
type Identity struct {
	ID        string    `json:"id"`
	Anonymous bool      `json:"anonymous"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Provider reports and establishes write credentials.
type Provider interface {
	// Current returns the active identity or nil when none is active.
	Current(ctx context.Context) (*Identity, error)
	// SignInAnonymously starts establishing a lightweight identity. It may
	// become visible to Current only after a short propagation delay.
	SignInAnonymously(ctx context.Context) error
}

// RedisProvider issues anonymous identities stored under session:<id> with a TTL.
type RedisProvider struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	current string
}

// NewRedisProvider constructs a provider.
func NewRedisProvider(client *redis.Client, ttl time.Duration) *RedisProvider {
	return &RedisProvider{client: client, ttl: ttl, now: time.Now}
}

// Current checks that the identity held by this process is still live.
func (p *RedisProvider) Current(ctx context.Context) (*Identity, error) {
	p.mu.Lock()
	id := p.current
	p.mu.Unlock()
	if id == "" {
		return nil, nil
	}

	payload, err := p.client.Get(ctx, p.redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		p.forget(id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", shared.Connectivity(err))
	}
	var identity Identity
	if err := json.Unmarshal(payload, &identity); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &identity, nil
}

// SignInAnonymously stores a fresh anonymous identity.
func (p *RedisProvider) SignInAnonymously(ctx context.Context) error {
	identity := Identity{ID: uuid.NewString(), Anonymous: true, IssuedAt: p.now().UTC()}
	payload, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	if err := p.client.Set(ctx, p.redisKey(identity.ID), payload, p.ttl).Err(); err != nil {
		return fmt.Errorf("session: sign in: %w", shared.Connectivity(err))
	}
	p.mu.Lock()
	p.current = identity.ID
	p.mu.Unlock()
	return nil
}

// SignOut drops the held identity.
func (p *RedisProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	id := p.current
	p.current = ""
	p.mu.Unlock()
	if id == "" {
		return nil
	}
	if err := p.client.Del(ctx, p.redisKey(id)).Err(); err != nil {
		return shared.Connectivity(err)
	}
	return nil
}

func (p *RedisProvider) forget(id string) {
	p.mu.Lock()
	if p.current == id {
		p.current = ""
	}
	p.mu.Unlock()
}

func (p *RedisProvider) redisKey(id string) string {
	return "session:" + id
}

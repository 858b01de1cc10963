// Package cache holds the read-side proof cache. Proofs are immutable once
// committed, so caching them is safe; invalidation only happens on the
// administrative supersede path.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"provenance/internal/document/models"
	"provenance/internal/platform/metrics"
)

// ProofCache serves committed verification proofs. Find returns (nil, nil) on
// a miss; a miss is not an error.
type ProofCache interface {
	Save(ctx context.Context, documentID string, proof models.VerificationProof) error
	Find(ctx context.Context, documentID string) (*models.VerificationProof, error)
	Invalidate(ctx context.Context, documentID string) error
}

// MemoryCache is the dev and test cache.
type MemoryCache struct {
	mu     sync.RWMutex
	proofs map[string]models.VerificationProof
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{proofs: make(map[string]models.VerificationProof)}
}

func (c *MemoryCache) Save(_ context.Context, documentID string, proof models.VerificationProof) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proofs[documentID] = proof
	return nil
}

func (c *MemoryCache) Find(_ context.Context, documentID string) (*models.VerificationProof, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if proof, ok := c.proofs[documentID]; ok {
		return &proof, nil
	}
	return nil, nil
}

func (c *MemoryCache) Invalidate(_ context.Context, documentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.proofs, documentID)
	return nil
}

// RedisCache stores proofs as JSON under a TTL. Cache errors other than a miss
// are surfaced so callers can decide whether to fall through to the ledger.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
}

func NewRedisCache(client *redis.Client, ttl time.Duration, m *metrics.Metrics) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, metrics: m}
}

func proofKey(documentID string) string {
	return "proof:" + documentID
}

func (c *RedisCache) Save(ctx context.Context, documentID string, proof models.VerificationProof) error {
	body, err := json.Marshal(proof)
	if err != nil {
		return fmt.Errorf("encode proof: %w", err)
	}
	if err := c.client.Set(ctx, proofKey(documentID), body, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache proof: %w", err)
	}
	return nil
}

func (c *RedisCache) Find(ctx context.Context, documentID string) (*models.VerificationProof, error) {
	body, err := c.client.Get(ctx, proofKey(documentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if c.metrics != nil {
				c.metrics.ProofCacheMisses.Inc()
			}
			return nil, nil
		}
		return nil, fmt.Errorf("read cached proof: %w", err)
	}

	var proof models.VerificationProof
	if err := json.Unmarshal(body, &proof); err != nil {
		return nil, fmt.Errorf("decode cached proof: %w", err)
	}
	if c.metrics != nil {
		c.metrics.ProofCacheHits.Inc()
	}
	return &proof, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, documentID string) error {
	if err := c.client.Del(ctx, proofKey(documentID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached proof: %w", err)
	}
	return nil
}

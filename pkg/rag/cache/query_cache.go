package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"ai-docs-helper/pkg/store"

	"github.com/redis/go-redis/v9"
)

// cacheVersion is part of every derived key. Bump it to bust all entries
// after a change in the cached payload shape.
const cacheVersion = "v1.0"

const redisKeyPrefix = "genai:"

// Config encapsulates cache parameters
type Config struct {
	TTL             time.Duration
	MaxLocalEntries int
}

func DefaultConfig() Config {
	return Config{
		TTL:             time.Hour,
		MaxLocalEntries: 1000,
	}
}

// Stats is a read-only snapshot of cache counters.
type Stats struct {
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	RedisErrors    int64   `json:"redis_errors"`
	Evictions      int64   `json:"evictions"`
	TotalRequests  int64   `json:"total_requests"`
	HitRate        float64 `json:"hit_rate"`
	LocalSize      int     `json:"local_size"`
	RedisAvailable bool    `json:"redis_available"`
}

type localEntry struct {
	answer    store.Answer
	question  string
	expiresAt time.Time
	sequence  uint64
}

// QueryCache is a dual-layer cache: Redis as the shared authoritative
// backend, an in-process bounded map as the always-on fallback. Redis being
// unreachable is never fatal; the cache degrades to memory-only operation.
type QueryCache struct {
	cfg    Config
	rdb    *redis.Client
	logger *log.Logger

	mu      sync.Mutex
	local   map[string]localEntry
	nextSeq uint64

	hits        int64
	misses      int64
	redisErrors int64
	evictions   int64
}

// NewQueryCache creates the cache. rdb may be nil (memory-only mode); when
// non-nil, connectivity is probed once and the client is dropped on failure.
func NewQueryCache(cfg Config, rdb *redis.Client, logger *log.Logger) *QueryCache {
	if cfg.MaxLocalEntries <= 0 {
		cfg.MaxLocalEntries = DefaultConfig().MaxLocalEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}

	c := &QueryCache{
		cfg:    cfg,
		rdb:    rdb,
		logger: logger,
		local:  make(map[string]localEntry),
	}

	if rdb != nil {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Printf("[CACHE] Redis not available (%v), using memory cache only", err)
			c.rdb = nil
		} else {
			logger.Printf("[CACHE] Redis cache connected")
		}
	} else {
		logger.Printf("[CACHE] Redis disabled by configuration, using memory-only caching")
	}

	return c
}

// GenerateKey derives the deterministic cache key for a question/context
// pair. Same inputs always produce the same key within a cache version.
func GenerateKey(question, context string) string {
	combined := fmt.Sprintf("%s|%s|%s", question, context, cacheVersion)
	return fmt.Sprintf("%x", md5.Sum([]byte(combined)))
}

// Get returns the cached answer for (question, context), Redis first, then
// the local layer. Redis errors are counted and swallowed.
func (c *QueryCache) Get(ctx context.Context, question, contextKey string) (*store.Answer, bool) {
	key := GenerateKey(question, contextKey)

	if answer := c.getFromRedis(ctx, key); answer != nil {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		c.logger.Printf("[CACHE] Hit (redis) for key %.8s...", key)
		return answer, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.local[key]; ok {
		if time.Now().Before(entry.expiresAt) {
			c.hits++
			c.logger.Printf("[CACHE] Hit (memory) for key %.8s...", key)
			answer := entry.answer
			return &answer, true
		}
		delete(c.local, key)
	}

	c.misses++
	c.logger.Printf("[CACHE] Miss for key %.8s...", key)
	return nil, false
}

// Set writes through to Redis (best effort) and unconditionally to the
// local layer, evicting the oldest entries past capacity.
func (c *QueryCache) Set(ctx context.Context, question, contextKey string, answer store.Answer) {
	key := GenerateKey(question, contextKey)
	answer.CachedAt = time.Now().Format(time.RFC3339)
	answer.CacheKey = key

	redisOK := c.setToRedis(ctx, key, answer)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSeq++
	c.local[key] = localEntry{
		answer:    answer,
		question:  question,
		expiresAt: time.Now().Add(c.cfg.TTL),
		sequence:  c.nextSeq,
	}
	c.enforceCapacityLocked()

	c.logger.Printf("[CACHE] Stored (redis: %t, memory: true) key %.8s...", redisOK, key)
}

// InvalidatePattern removes entries whose key or stored question contains
// the substring. The Redis side is best effort. Returns the local removals.
func (c *QueryCache) InvalidatePattern(ctx context.Context, substring string) int {
	c.mu.Lock()
	removed := 0
	var matchedKeys []string
	for key, entry := range c.local {
		if strings.Contains(key, substring) || strings.Contains(entry.question, substring) {
			delete(c.local, key)
			matchedKeys = append(matchedKeys, redisKeyPrefix+key)
			removed++
		}
	}
	c.mu.Unlock()

	if c.rdb != nil {
		// Redis keys are derived hashes, so question matches are resolved
		// through the local sweep above; the scan catches key-substring
		// matches the local layer may have already evicted.
		iter := c.rdb.Scan(ctx, 0, redisKeyPrefix+"*"+substring+"*", 0).Iterator()
		keys := matchedKeys
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			c.countRedisError("scan", err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				c.countRedisError("del", err)
			}
		}
	}

	c.logger.Printf("[CACHE] Invalidated %d local entries matching %q", removed, substring)
	return removed
}

// Clear drops everything from both layers.
func (c *QueryCache) Clear(ctx context.Context) {
	c.mu.Lock()
	c.local = make(map[string]localEntry)
	c.mu.Unlock()

	if c.rdb != nil {
		iter := c.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			c.countRedisError("scan", err)
		} else if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				c.countRedisError("del", err)
			}
		}
	}
}

// Stats returns a snapshot of the counters. HitRate is 0 until the first
// request.
func (c *QueryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		Hits:           c.hits,
		Misses:         c.misses,
		RedisErrors:    c.redisErrors,
		Evictions:      c.evictions,
		TotalRequests:  total,
		HitRate:        hitRate,
		LocalSize:      len(c.local),
		RedisAvailable: c.rdb != nil,
	}
}

// enforceCapacityLocked drops expired entries first, then the oldest
// insertions until the bound holds. Caller holds c.mu.
func (c *QueryCache) enforceCapacityLocked() {
	if len(c.local) <= c.cfg.MaxLocalEntries {
		return
	}

	now := time.Now()
	for key, entry := range c.local {
		if !now.Before(entry.expiresAt) {
			delete(c.local, key)
			c.evictions++
		}
	}

	for len(c.local) > c.cfg.MaxLocalEntries {
		oldestKey := ""
		oldestSeq := c.nextSeq + 1
		for key, entry := range c.local {
			if entry.sequence < oldestSeq {
				oldestSeq = entry.sequence
				oldestKey = key
			}
		}
		delete(c.local, oldestKey)
		c.evictions++
	}
}

func (c *QueryCache) getFromRedis(ctx context.Context, key string) *store.Answer {
	if c.rdb == nil {
		return nil
	}

	raw, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		c.countRedisError("get", err)
		return nil
	}

	var answer store.Answer
	if err := json.Unmarshal(raw, &answer); err != nil {
		c.countRedisError("decode", err)
		return nil
	}
	return &answer
}

func (c *QueryCache) setToRedis(ctx context.Context, key string, answer store.Answer) bool {
	if c.rdb == nil {
		return false
	}

	raw, err := json.Marshal(answer)
	if err != nil {
		c.countRedisError("encode", err)
		return false
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+key, raw, c.cfg.TTL).Err(); err != nil {
		c.countRedisError("set", err)
		return false
	}
	return true
}

func (c *QueryCache) countRedisError(op string, err error) {
	c.mu.Lock()
	c.redisErrors++
	c.mu.Unlock()
	c.logger.Printf("[CACHE] Redis %s error: %v", op, err)
}

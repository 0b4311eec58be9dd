package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/models"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
	"github.com/cannibal3004/ai-dungeon-master-sub001/shared/redis"
)

// Key identifies which cached timeline applies: one entry per
// (campaign, character) pair.
type Key struct {
	CampaignID  string
	CharacterID string
}

func (k Key) String() string {
	return fmt.Sprintf("timeline:%s:%s", k.CampaignID, k.CharacterID)
}

// TimelineCache persists the message timeline so a restart can re-hydrate
// near-instantly. Best effort: the next authoritative history fetch
// overwrites whatever is here.
type TimelineCache interface {
	Load(ctx context.Context, key Key) ([]models.Message, bool)
	Store(ctx context.Context, key Key, timeline []models.Message) error
	Clear(ctx context.Context, key Key) error
}

// RedisCache stores serialized timelines in redis with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCache wraps a redis client as a TimelineCache.
func NewRedisCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, log: log.WithComponent("cache")}
}

func (c *RedisCache) Load(ctx context.Context, key Key) ([]models.Message, bool) {
	raw, err := c.client.Get(ctx, key.String())
	if err != nil {
		if !redis.IsMiss(err) {
			c.log.Warn("timeline cache read failed", "key", key.String(), "error", err.Error())
		}
		return nil, false
	}

	var timeline []models.Message
	if err := json.Unmarshal([]byte(raw), &timeline); err != nil {
		c.log.Warn("discarding corrupt cached timeline", "key", key.String(), "error", err.Error())
		return nil, false
	}
	return timeline, true
}

func (c *RedisCache) Store(ctx context.Context, key Key, timeline []models.Message) error {
	raw, err := json.Marshal(timeline)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key.String(), string(raw), c.ttl)
}

func (c *RedisCache) Clear(ctx context.Context, key Key) error {
	return c.client.Del(ctx, key.String())
}

// MemoryCache is the fallback when redis is disabled or unreachable. It keeps
// the same serialized form so behavior matches the redis path.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryCache creates an empty in-process timeline cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

func (c *MemoryCache) Load(_ context.Context, key Key) ([]models.Message, bool) {
	c.mu.RLock()
	raw, ok := c.entries[key.String()]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	var timeline []models.Message
	if err := json.Unmarshal(raw, &timeline); err != nil {
		return nil, false
	}
	return timeline, true
}

func (c *MemoryCache) Store(_ context.Context, key Key, timeline []models.Message) error {
	raw, err := json.Marshal(timeline)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key.String()] = raw
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Clear(_ context.Context, key Key) error {
	c.mu.Lock()
	delete(c.entries, key.String())
	c.mu.Unlock()
	return nil
}

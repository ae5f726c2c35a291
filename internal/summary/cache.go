package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const cacheTTL = 60 * time.Second

// Cache is the read-model cache keyed by entity ID. Every facade write
// touching a tournament or store invalidates the matching keys, so a
// summary is never served stale across a mutation.
type Cache struct {
	Client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{Client: client}
}

func tournamentKey(tournamentID string) string {
	return "summary:tournament:" + tournamentID
}

func storeKey(storeID string) string {
	return "summary:store:" + storeID
}

func userKey(userID, tournamentID string) string {
	return fmt.Sprintf("summary:user:%s:%s", userID, tournamentID)
}

const overallKey = "summary:overall"

// Get unmarshals a cached summary into dest. It reports false on a miss or
// when the cache is unavailable; callers fall through to the database.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	if c == nil || c.Client == nil {
		return false
	}
	raw, err := c.Client.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(raw), dest) == nil
}

// Set stores a summary under key. Cache failures are ignored; the database
// remains authoritative.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) {
	if c == nil || c.Client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.Client.Set(ctx, key, raw, cacheTTL)
}

// Invalidate drops every summary touched by a write against the given
// tournament, stores and users.
func (c *Cache) Invalidate(ctx context.Context, tournamentID string, storeIDs []string, userIDs []string) {
	if c == nil || c.Client == nil {
		return
	}
	keys := []string{overallKey}
	if tournamentID != "" {
		keys = append(keys, tournamentKey(tournamentID))
	}
	for _, storeID := range storeIDs {
		keys = append(keys, storeKey(storeID))
	}
	for _, userID := range userIDs {
		keys = append(keys, userKey(userID, tournamentID))
	}
	c.Client.Del(ctx, keys...)
}

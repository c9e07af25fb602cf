package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const participantsKey = "room_participants"

// ParticipantCache holds the volatile per-room participant lists of the
// unprivileged process.
type ParticipantCache interface {
	Load(ctx context.Context) (map[string][]any, error)
	Save(ctx context.Context, byRoom map[string][]any) error
}

type MemoryParticipantCache struct {
	mu     sync.Mutex
	byRoom map[string][]any
}

func NewMemoryParticipantCache() *MemoryParticipantCache {
	return &MemoryParticipantCache{byRoom: make(map[string][]any)}
}

func (c *MemoryParticipantCache) Load(ctx context.Context) (map[string][]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]any, len(c.byRoom))
	for id, ps := range c.byRoom {
		out[id] = deepCopy(ps).([]any)
	}
	return out, nil
}

func (c *MemoryParticipantCache) Save(ctx context.Context, byRoom map[string][]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byRoom = make(map[string][]any, len(byRoom))
	for id, ps := range byRoom {
		c.byRoom[id] = deepCopy(ps).([]any)
	}
	return nil
}

// RedisParticipantCache keeps the lists in one hash, field = room id.
type RedisParticipantCache struct {
	rdb *redis.Client
	key string
}

func NewRedisParticipantCache(rdb *redis.Client) *RedisParticipantCache {
	return &RedisParticipantCache{rdb: rdb, key: participantsKey}
}

func (c *RedisParticipantCache) Load(ctx context.Context) (map[string][]any, error) {
	fields, err := c.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", c.key, err)
	}
	out := make(map[string][]any, len(fields))
	for roomID, raw := range fields {
		var ps []any
		if err := json.Unmarshal([]byte(raw), &ps); err != nil {
			return nil, fmt.Errorf("room %s participants: %w", roomID, err)
		}
		out[roomID] = ps
	}
	return out, nil
}

func (c *RedisParticipantCache) Save(ctx context.Context, byRoom map[string][]any) error {
	values := make(map[string]any, len(byRoom))
	for roomID, ps := range byRoom {
		b, err := json.Marshal(ps)
		if err != nil {
			return err
		}
		values[roomID] = string(b)
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.key)
		if len(values) > 0 {
			pipe.HSet(ctx, c.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", c.key, err)
	}
	return nil
}

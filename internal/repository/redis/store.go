// Package redis stores tables as hashes (dicts) and one list per key (list dicts).
// A per-table set indexes the non-empty list keys.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"whispr-service/internal/client"
	"whispr-service/internal/repository"
)

// extendScript appends ARGV[2..] to KEYS[1] skipping members already present,
// then indexes ARGV[1] in KEYS[2].
var extendScript = goredis.NewScript(`
local seen = {}
for _, v in ipairs(redis.call('LRANGE', KEYS[1], 0, -1)) do
  seen[v] = true
end
local added = 0
for i = 2, #ARGV do
  local m = ARGV[i]
  if not seen[m] then
    redis.call('RPUSH', KEYS[1], m)
    seen[m] = true
    added = added + 1
  end
end
if redis.call('LLEN', KEYS[1]) > 0 then
  redis.call('SADD', KEYS[2], ARGV[1])
end
return added
`)

var removeScript = goredis.NewScript(`
redis.call('LREM', KEYS[1], 0, ARGV[2])
if redis.call('LLEN', KEYS[1]) == 0 then
  redis.call('SREM', KEYS[2], ARGV[1])
end
return 1
`)

type Store struct {
	client *client.RedisClient
}

func NewStore(c *client.RedisClient) *Store {
	return &Store{client: c}
}

func (s *Store) Dict(table string) repository.Dict {
	return &dict{client: s.client, key: s.client.Key("dict", table)}
}

func (s *Store) ListDict(table string) repository.ListDict {
	return &listDict{client: s.client, table: table, index: s.client.Key("listkeys", table)}
}

func (s *Store) HealthCheck(ctx context.Context) error { return s.client.HealthCheck(ctx) }

func (s *Store) Close() error { return s.client.Close() }

type dict struct {
	client *client.RedisClient
	key    string
}

func (d *dict) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := d.client.Client.HGet(ctx, d.key, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget %s: %w", d.key, err)
	}
	return value, true, nil
}

func (d *dict) Set(ctx context.Context, key, value string) error {
	if err := d.client.Client.HSet(ctx, d.key, key, value).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", d.key, err)
	}
	return nil
}

func (d *dict) Keys(ctx context.Context) ([]string, error) {
	keys, err := d.client.Client.HKeys(ctx, d.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hkeys %s: %w", d.key, err)
	}
	return keys, nil
}

func (d *dict) Items(ctx context.Context) (map[string]string, error) {
	items, err := d.client.Client.HGetAll(ctx, d.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", d.key, err)
	}
	return items, nil
}

func (d *dict) Pop(ctx context.Context, key string) (string, bool, error) {
	var get *goredis.StringCmd
	_, err := d.client.Client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		get = pipe.HGet(ctx, d.key, key)
		pipe.HDel(ctx, d.key, key)
		return nil
	})
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis pop %s: %w", d.key, err)
	}
	return get.Val(), true, nil
}

type listDict struct {
	client *client.RedisClient
	table  string
	index  string
}

func (l *listDict) listKey(key string) string {
	return l.client.Key("list", l.table, key)
}

func (l *listDict) Get(ctx context.Context, key string) ([]string, error) {
	members, err := l.client.Client.LRange(ctx, l.listKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", l.listKey(key), err)
	}
	return members, nil
}

func (l *listDict) Extend(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, 0, len(members)+1)
	args = append(args, key)
	for _, m := range members {
		args = append(args, m)
	}
	if err := extendScript.Run(ctx, l.client.Client, []string{l.listKey(key), l.index}, args...).Err(); err != nil {
		return fmt.Errorf("redis extend %s: %w", l.listKey(key), err)
	}
	return nil
}

func (l *listDict) RemoveFrom(ctx context.Context, key, member string) error {
	if err := removeScript.Run(ctx, l.client.Client, []string{l.listKey(key), l.index}, key, member).Err(); err != nil {
		return fmt.Errorf("redis remove %s: %w", l.listKey(key), err)
	}
	return nil
}

func (l *listDict) Items(ctx context.Context) (map[string][]string, error) {
	keys, err := l.client.Client.SMembers(ctx, l.index).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", l.index, err)
	}

	cmds := make(map[string]*goredis.StringSliceCmd, len(keys))
	_, err = l.client.Client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, k := range keys {
			cmds[k] = pipe.LRange(ctx, l.listKey(k), 0, -1)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis items %s: %w", l.table, err)
	}

	out := make(map[string][]string, len(keys))
	for k, cmd := range cmds {
		if members := cmd.Val(); len(members) > 0 {
			out[k] = members
		}
	}
	return out, nil
}

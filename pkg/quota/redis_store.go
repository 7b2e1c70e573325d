package quota

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counters are hashes with "used" and "reserved" fields. Each script touches a
// single key, so the check and the increment run atomically on the server.
var (
	reserveScript = redis.NewScript(`
local used = tonumber(redis.call('HGET', KEYS[1], 'used') or '0')
local reserved = tonumber(redis.call('HGET', KEYS[1], 'reserved') or '0')
local amount = tonumber(ARGV[1])
if used + reserved + amount > tonumber(ARGV[2]) then
  return {0, used, reserved}
end
reserved = redis.call('HINCRBY', KEYS[1], 'reserved', amount)
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return {1, used, reserved}
`)

	commitScript = redis.NewScript(`
local reserved = redis.call('HINCRBY', KEYS[1], 'reserved', -tonumber(ARGV[1]))
if reserved < 0 then
  redis.call('HSET', KEYS[1], 'reserved', 0)
end
redis.call('HINCRBY', KEYS[1], 'used', tonumber(ARGV[2]))
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

	releaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local reserved = redis.call('HINCRBY', KEYS[1], 'reserved', -tonumber(ARGV[1]))
if reserved < 0 then
  redis.call('HSET', KEYS[1], 'reserved', 0)
end
return 1
`)
)

// RedisStore keeps counters in Redis. Keys expire after the window's retention.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if client == nil {
		panic("quota: redis client is required")
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k CounterKey) string {
	return s.prefix + "quota:" + string(k.Resource) + ":" + k.Subject + ":" + k.Window
}

func (s *RedisStore) Reserve(ctx context.Context, key CounterKey, amount, limit int64, retention time.Duration) (Counter, bool, error) {
	vals, err := reserveScript.Run(ctx, s.client, []string{s.key(key)}, amount, limit, retention.Milliseconds()).Int64Slice()
	if err != nil {
		return Counter{}, false, err
	}
	if len(vals) != 3 {
		return Counter{}, false, errors.New("quota: unexpected reserve script reply")
	}
	return Counter{Used: vals[1], Reserved: vals[2]}, vals[0] == 1, nil
}

func (s *RedisStore) Commit(ctx context.Context, key CounterKey, reserved, actual int64, retention time.Duration) error {
	return commitScript.Run(ctx, s.client, []string{s.key(key)}, reserved, actual, retention.Milliseconds()).Err()
}

func (s *RedisStore) Release(ctx context.Context, key CounterKey, amount int64) error {
	return releaseScript.Run(ctx, s.client, []string{s.key(key)}, amount).Err()
}

func (s *RedisStore) Get(ctx context.Context, keys ...CounterKey) ([]Counter, error) {
	cmds := make([]*redis.SliceCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.HMGet(ctx, s.key(k), "used", "reserved")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]Counter, len(keys))
	for i, cmd := range cmds {
		var c struct {
			Used     int64 `redis:"used"`
			Reserved int64 `redis:"reserved"`
		}
		if err := cmd.Scan(&c); err != nil {
			return nil, err
		}
		out[i] = Counter{Used: c.Used, Reserved: c.Reserved}
	}
	return out, nil
}

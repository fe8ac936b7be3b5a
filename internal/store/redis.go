package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// decrOrRemoveScript performs the compare-then-decrement-or-remove step
// server-side so concurrent penalties on the same key cannot interleave.
// Returns {newScore, removedFlag}.
var decrOrRemoveScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if (not score) or (tonumber(score) - 1 <= tonumber(ARGV[2])) then
	redis.call('ZREM', KEYS[1], ARGV[1])
	return {0, 1}
end
local new = redis.call('ZINCRBY', KEYS[1], -1, ARGV[1])
return {tonumber(new), 0}
`)

// RedisOptions configures the Redis-backed store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Key is the sorted-set key holding the registry. Defaults to
	// "proxyrank:endpoints".
	Key          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore implements ScoreStore on a Redis sorted set via go-redis v9.
// The handle is explicitly constructed and closed by the caller; nothing
// here is process-global.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore connects to Redis and verifies connectivity with a ping.
// The caller decides whether a connection error means fallback to the
// in-memory store or a fatal exit.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.Key == "" {
		opts.Key = "proxyrank:endpoints"
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 3 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 2 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 2 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", opts.Addr, err)
	}

	slog.Info("redis store connected", "addr", opts.Addr, "db", opts.DB, "key", opts.Key)
	return &RedisStore{rdb: rdb, key: opts.Key}, nil
}

func (r *RedisStore) Score(ctx context.Context, key string) (int64, error) {
	score, err := r.rdb.ZScore(ctx, r.key, key).Result()
	if err == redis.Nil {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis ZSCORE: %w", err)
	}
	return int64(score), nil
}

func (r *RedisStore) SetScore(ctx context.Context, key string, score int64) error {
	if err := r.rdb.ZAdd(ctx, r.key, redis.Z{Score: float64(score), Member: key}).Err(); err != nil {
		return fmt.Errorf("redis ZADD: %w", err)
	}
	return nil
}

func (r *RedisStore) AddIfAbsent(ctx context.Context, key string, score int64) (bool, error) {
	added, err := r.rdb.ZAddNX(ctx, r.key, redis.Z{Score: float64(score), Member: key}).Result()
	if err != nil {
		return false, fmt.Errorf("redis ZADD NX: %w", err)
	}
	return added == 1, nil
}

func (r *RedisStore) IncrScore(ctx context.Context, key string, delta int64) (int64, error) {
	score, err := r.rdb.ZIncrBy(ctx, r.key, float64(delta), key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ZINCRBY: %w", err)
	}
	return int64(score), nil
}

func (r *RedisStore) DecrOrRemove(ctx context.Context, key string, floor int64) (int64, bool, error) {
	res, err := decrOrRemoveScript.Run(ctx, r.rdb, []string{r.key}, key, floor).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("redis decr-or-remove script: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("redis decr-or-remove script: unexpected reply %v", res)
	}
	return res[0], res[1] == 1, nil
}

func (r *RedisStore) Remove(ctx context.Context, key string) error {
	if err := r.rdb.ZRem(ctx, r.key, key).Err(); err != nil {
		return fmt.Errorf("redis ZREM: %w", err)
	}
	return nil
}

func (r *RedisStore) Card(ctx context.Context) (int64, error) {
	n, err := r.rdb.ZCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ZCARD: %w", err)
	}
	return n, nil
}

func (r *RedisStore) RangeByScore(ctx context.Context, min, max int64) ([]string, error) {
	keys, err := r.rdb.ZRangeByScore(ctx, r.key, &redis.ZRangeBy{
		Min: strconv.FormatInt(min, 10),
		Max: strconv.FormatInt(max, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ZRANGEBYSCORE: %w", err)
	}
	return keys, nil
}

func (r *RedisStore) RangeByRankDesc(ctx context.Context, start, stop int64) ([]string, error) {
	if start < 0 {
		start = 0
	}
	if stop <= start {
		return []string{}, nil
	}
	// ZREVRANGE bounds are inclusive; the interface is half-open.
	keys, err := r.rdb.ZRevRange(ctx, r.key, start, stop-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ZREVRANGE: %w", err)
	}
	return keys, nil
}

// Close shuts down the underlying client connection pool.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

// Package coordstore implements the coordination store facade (C6): the
// narrow bitfield/zset/kv/pipeline capability set the rest of the core
// depends on, so the backing store is swappable without touching any
// invariant the other components rely on.
package coordstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTimeout is returned when an operation exceeds its bounded deadline.
var ErrTimeout = errors.New("coordstore: operation timed out")

// connectionTimeout bounds the initial connectivity check in New.
const connectionTimeout = 5 * time.Second

// Config describes how to connect to the coordination store.
type Config struct {
	Address  string `yaml:"address"  env:"REDIS_ADDRESS"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"REDIS_DB"`
}

// ErrEmptyAddress is returned when Address is not configured.
var ErrEmptyAddress = errors.New("coordstore: redis address is required")

// casScript implements compare-and-delete: delete key only if its current
// value equals the expected value, atomically.
var casScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// casExtendScript implements compare-and-extend: refresh a key's TTL only
// if its current value equals the expected owner, atomically.
var casExtendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// Store is the concrete Redis-backed implementation of the coordination
// store facade described in SPEC_FULL.md §4.6.
type Store struct {
	client *redis.Client
}

// New connects to Redis per cfg and verifies reachability with a bounded
// ping, matching the reference codebase's connection-bootstrap convention.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("coordstore: ping failed: %w", err)
	}

	return &Store{client: client}, nil
}

// Client exposes the underlying *redis.Client for callers that need more
// than this narrow facade: the health server's reachability check and
// tests that clean up their own keys.
func (s *Store) Client() *redis.Client { return s.client }

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.client.Close() }

// KVSetIfAbsent is kv_set_if_absent(key, value, ttl) -> bool.
func (s *Store) KVSetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("coordstore: set-if-absent %s: %w", key, err)
	}
	return ok, nil
}

// KVCompareAndDelete is kv_compare_and_delete(key, expected) -> bool.
func (s *Store) KVCompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	res, err := casScript.Run(ctx, s.client, []string{key}, expected).Int64()
	if err != nil {
		return false, fmt.Errorf("coordstore: compare-and-delete %s: %w", key, err)
	}
	return res == 1, nil
}

// KVCompareAndExtend refreshes key's TTL iff its value still equals expected.
func (s *Store) KVCompareAndExtend(ctx context.Context, key, expected string, ttl time.Duration) (bool, error) {
	res, err := casExtendScript.Run(ctx, s.client, []string{key}, expected, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("coordstore: compare-and-extend %s: %w", key, err)
	}
	return res == 1, nil
}

// KVGet is kv_get(key). Returns ("", false, nil) on a cache miss.
func (s *Store) KVGet(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("coordstore: get %s: %w", key, err)
	}
	return val, true, nil
}

// KVSet sets key unconditionally with the given TTL (0 = no expiry). Used
// where no compare-and-swap semantics are required (e.g. writing domain
// records after a lease release).
func (s *Store) KVSet(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("coordstore: set %s: %w", key, err)
	}
	return nil
}

// KVScan is kv_scan(prefix) -> iter, returning every matching key.
func (s *Store) KVScan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("coordstore: scan %s: %w", prefix, err)
	}
	return keys, nil
}

// ZSetAdd is zset_add(key, score, member).
func (s *Store) ZSetAdd(ctx context.Context, key string, score float64, member string) error {
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("coordstore: zadd %s: %w", key, err)
	}
	return nil
}

// ZSetPopMin is zset_pop_min(key) -> (score, member) | empty.
func (s *Store) ZSetPopMin(ctx context.Context, key string) (member string, score float64, ok bool, err error) {
	res, popErr := s.client.ZPopMin(ctx, key, 1).Result()
	if popErr != nil {
		return "", 0, false, fmt.Errorf("coordstore: zpopmin %s: %w", key, popErr)
	}
	if len(res) == 0 {
		return "", 0, false, nil
	}
	member, _ = res[0].Member.(string)
	return member, res[0].Score, true, nil
}

// ZSetCard is zset_card(key).
func (s *Store) ZSetCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("coordstore: zcard %s: %w", key, err)
	}
	return n, nil
}

// BitfieldGetBits is bitfield_get_bits(key, indices) -> [bool].
func (s *Store) BitfieldGetBits(ctx context.Context, key string, indices []int64) ([]bool, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(indices))
	for i, idx := range indices {
		cmds[i] = pipe.GetBit(ctx, key, idx)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("coordstore: bitfield get %s: %w", key, err)
	}
	out := make([]bool, len(indices))
	for i, cmd := range cmds {
		v, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("coordstore: bitfield get result: %w", err)
		}
		out[i] = v != 0
	}
	return out, nil
}

// BitfieldSetBits is bitfield_set_bits(key, indices).
func (s *Store) BitfieldSetBits(ctx context.Context, key string, indices []int64) error {
	pipe := s.client.Pipeline()
	for _, idx := range indices {
		pipe.SetBit(ctx, key, idx, 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("coordstore: bitfield set %s: %w", key, err)
	}
	return nil
}

// BitfieldPopCount is bitfield_popcount(key): the number of set bits across
// the whole bit array.
func (s *Store) BitfieldPopCount(ctx context.Context, key string) (int64, error) {
	n, err := s.client.BitCount(ctx, key, &redis.BitCount{Start: 0, End: -1}).Result()
	if err != nil {
		return 0, fmt.Errorf("coordstore: bitfield popcount %s: %w", key, err)
	}
	return n, nil
}

// KVIncr is kv_incr(key): atomically increments key and returns its new
// value, treating a missing key as 0.
func (s *Store) KVIncr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("coordstore: incr %s: %w", key, err)
	}
	return n, nil
}

// Pipeliner exposes raw pipelining for batched round-trips where
// atomicity across ops is not required, only network amortization.
func (s *Store) Pipeliner() redis.Pipeliner { return s.client.Pipeline() }

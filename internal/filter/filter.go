// Package filter implements the approximate URL membership filter (C1): a
// coordination-store-bitmap-backed Bloom filter with zero false negatives
// and a bounded false-positive rate, sized per the classic m/k formulas.
package filter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/twmb/murmur3"
)

// ErrSaturated is logged (not returned as a hard failure) when the number of
// inserted elements has crossed the configured capacity; the filter keeps
// operating with a degraded false-positive rate rather than resizing.
var ErrSaturated = errors.New("filter: inserted count exceeds configured capacity")

const infoHashKey = ":info"

// store is the subset of the coordination store facade the filter needs:
// individual-bit reads/writes for Contains/Insert, a whole-array popcount
// for SizeEstimate, and an atomic counter for InsertedCount.
type store interface {
	BitfieldGetBits(ctx context.Context, key string, indices []int64) ([]bool, error)
	BitfieldSetBits(ctx context.Context, key string, indices []int64) error
	BitfieldPopCount(ctx context.Context, key string) (int64, error)
	KVIncr(ctx context.Context, key string) (int64, error)
	KVGet(ctx context.Context, key string) (string, bool, error)
}

// Config controls the sizing of a new filter.
type Config struct {
	// Capacity is the expected number of unique URLs (n).
	Capacity int64
	// ErrorRate is the target false-positive rate (ε) at Capacity insertions.
	ErrorRate float64
}

// DefaultConfig matches the spec's documented defaults: n=1e7, ε=1e-3.
func DefaultConfig() Config {
	return Config{Capacity: 10_000_000, ErrorRate: 0.001}
}

// Filter is a coordination-store-bitmap-backed Bloom filter shared across
// all worker processes via a single bit-array key.
type Filter struct {
	store  store
	key    string
	bits   int64 // m
	hashes int   // k
	cfg    Config
}

// New computes m and k from cfg and returns a Filter bound to key in the
// coordination store. It does not perform any network I/O itself.
func New(s store, key string, cfg Config) (*Filter, error) {
	if cfg.Capacity <= 0 {
		return nil, errors.New("filter: capacity must be positive")
	}
	if cfg.ErrorRate <= 0 || cfg.ErrorRate >= 1 {
		return nil, errors.New("filter: error rate must be in (0, 1)")
	}

	ln2 := math.Ln2
	m := math.Ceil(-float64(cfg.Capacity) * math.Log(cfg.ErrorRate) / (ln2 * ln2))
	k := math.Ceil((m / float64(cfg.Capacity)) * ln2)

	return &Filter{
		store:  s,
		key:    key,
		bits:   int64(m),
		hashes: int(k),
		cfg:    cfg,
	}, nil
}

// indices derives k bit positions for url via double hashing:
// h_i = (a + i*b) mod m, where a and b are two 32-bit MurmurHash3 outputs
// (seeds 0 and 1) of the URL.
func (f *Filter) indices(url string) []int64 {
	data := []byte(url)
	a := int64(murmur3.SeedSum32(0, data))
	b := int64(murmur3.SeedSum32(1, data))
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}

	idx := make([]int64, f.hashes)
	for i := 0; i < f.hashes; i++ {
		idx[i] = (a + int64(i)*b) % f.bits
	}
	return idx
}

// Contains answers possibly-contains(url): true iff all k bits are set.
// False negatives never occur.
func (f *Filter) Contains(ctx context.Context, url string) (bool, error) {
	set, err := f.store.BitfieldGetBits(ctx, f.key, f.indices(url))
	if err != nil {
		return false, fmt.Errorf("filter: contains: %w", err)
	}
	for _, bit := range set {
		if !bit {
			return false, nil
		}
	}
	return true, nil
}

// Insert sets all k bits for url. Idempotent.
func (f *Filter) Insert(ctx context.Context, url string) error {
	if err := f.store.BitfieldSetBits(ctx, f.key, f.indices(url)); err != nil {
		return fmt.Errorf("filter: insert: %w", err)
	}
	if _, err := f.store.KVIncr(ctx, f.key+infoHashKey+":inserted"); err != nil {
		return fmt.Errorf("filter: insert counter: %w", err)
	}
	return nil
}

// SizeEstimate returns an estimate of the number of distinct elements
// inserted, derived from the fraction of bits set: -(m/k)*ln(1 - ones/m).
func (f *Filter) SizeEstimate(ctx context.Context) (float64, error) {
	ones, err := f.store.BitfieldPopCount(ctx, f.key)
	if err != nil {
		return 0, fmt.Errorf("filter: popcount: %w", err)
	}

	fraction := float64(ones) / float64(f.bits)
	if fraction >= 1 {
		return float64(f.cfg.Capacity) * 10, nil // fully saturated; degrade gracefully
	}
	return -(float64(f.bits) / float64(f.hashes)) * math.Log(1-fraction), nil
}

// InsertedCount returns the raw insert() call count tracked alongside the
// bit array, used only to detect saturation (inserted > capacity) for
// logging; it is not consulted by Contains/Insert themselves.
func (f *Filter) InsertedCount(ctx context.Context) (int64, error) {
	v, ok, err := f.store.KVGet(ctx, f.key+infoHashKey+":inserted")
	if err != nil {
		return 0, fmt.Errorf("filter: inserted count: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, parseErr := strconv.ParseInt(v, 10, 64)
	if parseErr != nil {
		return 0, fmt.Errorf("filter: inserted count: %w", parseErr)
	}
	return n, nil
}

// Bits returns m, the configured bit-array width.
func (f *Filter) Bits() int64 { return f.bits }

// HashCount returns k, the configured number of hash functions.
func (f *Filter) HashCount() int { return f.hashes }

// Capacity returns n, the configured expected number of unique insertions.
func (f *Filter) Capacity() int64 { return f.cfg.Capacity }

package detector

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DenialCounter tracks authorization denials per actor over a sliding window.
type DenialCounter interface {
	// Add records a denial at `at` and returns how many denials the actor has
	// in the window ending at `at`, including this one.
	Add(ctx context.Context, actorID string, at time.Time, window time.Duration) (int, error)
	// Prune drops denials recorded at or before cutoff.
	Prune(ctx context.Context, cutoff time.Time) error
}

// MemoryDenialCounter is an in-process DenialCounter.
type MemoryDenialCounter struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

// NewMemoryDenialCounter creates an empty MemoryDenialCounter.
func NewMemoryDenialCounter() *MemoryDenialCounter {
	return &MemoryDenialCounter{events: make(map[string][]time.Time)}
}

// Add implements DenialCounter.
func (c *MemoryDenialCounter) Add(_ context.Context, actorID string, at time.Time, window time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[actorID] = append(keepAfter(c.events[actorID], at.Add(-window)), at)
	return len(c.events[actorID]), nil
}

// Prune implements DenialCounter.
func (c *MemoryDenialCounter) Prune(_ context.Context, cutoff time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ts := range c.events {
		kept := keepAfter(ts, cutoff)
		if len(kept) == 0 {
			delete(c.events, id)
			continue
		}
		c.events[id] = kept
	}
	return nil
}

// Actors reports how many actors have denials on record.
func (c *MemoryDenialCounter) Actors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// keepAfter returns the timestamps strictly after cutoff.
func keepAfter(ts []time.Time, cutoff time.Time) []time.Time {
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// RedisDenialCounter keeps one sorted set per actor, scored by unix
// microseconds, so several ledger instances share a single count.
type RedisDenialCounter struct {
	client *redis.Client
	prefix string
	seq    func() string
}

// NewRedisDenialCounter creates a RedisDenialCounter using keys under prefix.
func NewRedisDenialCounter(client *redis.Client, prefix string) *RedisDenialCounter {
	var mu sync.Mutex
	var n uint64
	return &RedisDenialCounter{
		client: client,
		prefix: prefix,
		seq: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return strconv.FormatUint(n, 10)
		},
	}
}

func (c *RedisDenialCounter) key(actorID string) string {
	return c.prefix + "denials:" + actorID
}

// Add implements DenialCounter.
func (c *RedisDenialCounter) Add(ctx context.Context, actorID string, at time.Time, window time.Duration) (int, error) {
	key := c.key(actorID)
	score := float64(at.UnixMicro())
	member := strconv.FormatInt(at.UnixNano(), 10) + "-" + c.seq()
	cutoff := strconv.FormatInt(at.Add(-window).UnixMicro(), 10)

	pipe := c.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis denial pipeline: %w", err)
	}
	return int(count.Val()), nil
}

// Prune implements DenialCounter. Idle keys also expire on their own after
// the window.
func (c *RedisDenialCounter) Prune(ctx context.Context, cutoff time.Time) error {
	upper := strconv.FormatInt(cutoff.UnixMicro(), 10)
	iter := c.client.Scan(ctx, 0, c.prefix+"denials:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.ZRemRangeByScore(ctx, iter.Val(), "-inf", upper).Err(); err != nil {
			return fmt.Errorf("prune %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

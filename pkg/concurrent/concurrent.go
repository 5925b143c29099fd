package concurrent

import (
	"context"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

// ForEach runs action for every element of items, at most limit at a time
// (limit <= 0 means unbounded). It waits for all goroutines and returns the
// first error; the context passed to action is cancelled once any call fails.
func ForEach[T any](ctx context.Context, items []T, limit int, action func(ctx context.Context, index int, value T) error) error {
	group, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		group.SetLimit(limit)
	}
	for idx, value := range items {
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return action(gctx, idx, value)
		})
	}
	return group.Wait()
}

// Shard distributes items over n buckets by key hash. Items keep their
// relative order inside a bucket, so a sequential merge of per-bucket results
// in bucket order is deterministic for a given input.
func Shard[T any](items []T, n int, key func(T) uint64) [][]T {
	if n < 1 {
		n = 1
	}
	buckets := make([][]T, n)
	for _, item := range items {
		idx := key(item) % uint64(n)
		buckets[idx] = append(buckets[idx], item)
	}
	return buckets
}

// HashUint64 is an xxhash of the little-endian encoding of v, used as a
// well-spread shard key for sequential ids.
func HashUint64(v uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return xxhash.Sum64(b[:])
}

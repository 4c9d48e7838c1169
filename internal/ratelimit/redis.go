// Copyright (c) 2026 CallVu Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces rate-limit keys in Redis.
const keyPrefix = "leadbridge:rl:"

// RedisStore keeps per-identity windows in a Redis sorted set scored by
// attempt time, so the limit is shared across all service instances.
// Keys expire one window after the last accepted attempt, which bounds
// identity cardinality without a janitor.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed sliding-window store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Take implements Store. Prune and count run in one pipeline; the append
// is a separate command, so two racing instances can each admit the
// 10th attempt. The cap is approximate across instances by a margin of
// the in-flight request count — acceptable for an abuse guard.
func (s *RedisStore) Take(ctx context.Context, identity string, now time.Time, windowDur time.Duration, limit int) (bool, error) {
	key := keyPrefix + identity
	cutoff := now.Add(-windowDur).UnixNano()

	pipe := s.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit prune: %w", err)
	}

	if card.Val() >= int64(limit) {
		return false, nil
	}

	pipe = s.rdb.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, windowDur)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit record: %w", err)
	}

	return true, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

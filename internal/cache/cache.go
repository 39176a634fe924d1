// Package cache provides the TTL key-value cache used to memoize
// expensive aggregate queries. Entries are never invalidated by event
// writes; a summary may lag the event log by up to its TTL.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is a generic TTL cache. Implemented by RedisCache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Delete removes a single entry. No current write path invalidates,
	// but the operation is part of the contract should that change.
	Delete(ctx context.Context, key string) error
}

// unbounded is the sentinel for an absent date bound, so that
// unbounded and bounded queries can never collide on the same key.
const unbounded = "all"

// SummaryKey builds the cache key for an event summary. Every query
// parameter that affects the result is part of the key; identical
// queries always collide and distinct queries never do.
func SummaryKey(applicationID, eventName, startDate, endDate string) string {
	if startDate == "" {
		startDate = unbounded
	}
	if endDate == "" {
		endDate = unbounded
	}
	return fmt.Sprintf("event-summary:%s:%s:%s:%s", applicationID, eventName, startDate, endDate)
}

// UserStatsKey builds the cache key for per-user statistics.
func UserStatsKey(applicationID, userID string) string {
	return fmt.Sprintf("user-stats:%s:%s", applicationID, userID)
}

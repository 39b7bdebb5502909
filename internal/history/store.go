package history

import (
	"context"
	"errors"
	"time"
)

// Record is the shard-resident persisted form of a conversation turn.
// There is exactly one record per user per shard: the first write
// creates it and every later write overwrites it in place.
type Record struct {
	ID          string
	UserID      string
	Username    string
	Payload     string
	CreatedAt   time.Time
	LastUpdated time.Time
	Ephemeral   bool
}

// Backend is one independent storage shard. The core only needs
// document upsert/find/delete keyed by user_id; anything that can do
// that can serve as a shard.
type Backend interface {
	Name() string
	Upsert(ctx context.Context, rec Record) error
	Find(ctx context.Context, userID string) (Record, bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	Count(ctx context.Context) (int, error)
	Close()
}

// Connector dials one backend URL. Failures are per-shard; registering
// the rest must proceed.
type Connector func(ctx context.Context, url string) (Backend, error)

// ErrNoShards is returned when an operation needs a shard but none
// registered successfully.
var ErrNoShards = errors.New("no shards available")

// ActivityStatus classifies how recently a stored record was touched.
// The janitor uses it to report what the next sweep would evict.
type ActivityStatus string

const (
	ActivityNew      ActivityStatus = "new"
	ActivityDaily    ActivityStatus = "daily"
	ActivityInactive ActivityStatus = "inactive"
)

// Classify buckets a record by age: created within the last day is
// new, updated within the last day is daily, everything else is
// inactive and a candidate for eviction.
func Classify(rec Record, now time.Time) ActivityStatus {
	dayAgo := now.Add(-24 * time.Hour)
	switch {
	case rec.CreatedAt.After(dayAgo):
		return ActivityNew
	case rec.LastUpdated.After(dayAgo):
		return ActivityDaily
	default:
		return ActivityInactive
	}
}

// ShardState tracks a shard connection through its lifecycle.
type ShardState string

const (
	StateUnregistered ShardState = "unregistered"
	StateConnecting   ShardState = "connecting"
	StateReady        ShardState = "ready"
	StateDegraded     ShardState = "degraded"
	StateClosed       ShardState = "closed"
)

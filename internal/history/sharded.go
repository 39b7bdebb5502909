package history

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/antoniostano/pixel/internal/policy"
)

// Sharded distributes per-user conversation records across independent
// backends by a deterministic hash of the user id. The same user always
// lands on the same shard for the lifetime of the registered set;
// changing the shard count invalidates the mapping and is not worked
// around.
type Sharded struct {
	filter     *policy.Filter
	retryAfter time.Duration

	mu     sync.RWMutex
	shards []*shard
}

type shard struct {
	url     string
	backend Backend

	mu         sync.Mutex
	state      ShardState
	lastErr    error
	degradedAt time.Time
}

// RegisterResult reports one backend's connection outcome.
type RegisterResult struct {
	URL string
	Err error
}

// NewSharded builds an empty store; call RegisterShards before use.
// retryAfter is how long a degraded shard is skipped before the next
// operation probes it again (off the hot path of other shards).
func NewSharded(filter *policy.Filter, retryAfter time.Duration) *Sharded {
	if retryAfter <= 0 {
		retryAfter = 30 * time.Second
	}
	return &Sharded{filter: filter, retryAfter: retryAfter}
}

// RegisterShards connects every backend URL concurrently. One failing
// backend never prevents the others from registering; the caller gets a
// per-URL result list. Only successfully connected shards join the set.
func (s *Sharded) RegisterShards(ctx context.Context, urls []string, connect Connector) []RegisterResult {
	results := make([]RegisterResult, len(urls))
	backends := make([]Backend, len(urls))

	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			b, err := connect(ctx, url)
			results[i] = RegisterResult{URL: url, Err: err}
			backends[i] = b
		}(i, url)
	}
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range backends {
		if results[i].Err != nil || b == nil {
			log.Printf("shard register failed for %s: %v", urls[i], results[i].Err)
			continue
		}
		s.shards = append(s.shards, &shard{url: urls[i], backend: b, state: StateReady})
	}
	return results
}

// ShardFor returns the backend owning userID: xxhash(user) mod N.
func (s *Sharded) ShardFor(userID string) (Backend, error) {
	sh, err := s.shardFor(userID)
	if err != nil {
		return nil, err
	}
	return sh.backend, nil
}

func (s *Sharded) shardFor(userID string) (*shard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.shards) == 0 {
		return nil, ErrNoShards
	}
	idx := xxhash.Sum64String(userID) % uint64(len(s.shards))
	return s.shards[idx], nil
}

// WriteTurn safety-checks the payload and upserts the user's record on
// its shard. A blocked payload is not stored and reports false; the
// caller treats that as handled, not as an error.
func (s *Sharded) WriteTurn(ctx context.Context, userID, username, payload string) (bool, error) {
	if d := s.filter.CheckStorable(payload); d.Blocked {
		log.Printf("history write blocked (%s) for user %s", d.Reason, userID)
		return false, nil
	}
	if redacted, changed := policy.RedactPII(payload); changed {
		log.Printf("history payload redacted for user %s", userID)
		payload = redacted
	}

	sh, err := s.shardFor(userID)
	if err != nil {
		return false, err
	}
	if !sh.usable(s.retryAfter) {
		log.Printf("shard %s degraded, skipping write for user %s", sh.url, userID)
		return false, nil
	}

	now := time.Now().UTC()
	rec := Record{
		ID:          uuid.NewString(),
		UserID:      userID,
		Username:    username,
		Payload:     payload,
		CreatedAt:   now,
		LastUpdated: now,
		Ephemeral:   true,
	}
	if err := sh.backend.Upsert(ctx, rec); err != nil {
		sh.markDegraded(err)
		return false, fmt.Errorf("upsert on shard %s: %w", sh.url, err)
	}
	sh.markReady()
	return true, nil
}

// ReadLatest fetches the user's latest stored payload from its shard.
func (s *Sharded) ReadLatest(ctx context.Context, userID string) (string, bool, error) {
	sh, err := s.shardFor(userID)
	if err != nil {
		return "", false, err
	}
	if !sh.usable(s.retryAfter) {
		log.Printf("shard %s degraded, skipping read for user %s", sh.url, userID)
		return "", false, nil
	}

	rec, found, err := sh.backend.Find(ctx, userID)
	if err != nil {
		sh.markDegraded(err)
		return "", false, fmt.Errorf("find on shard %s: %w", sh.url, err)
	}
	sh.markReady()
	if !found {
		return "", false, nil
	}
	return rec.Payload, true, nil
}

// UserActivity reports the activity bucket of the user's stored
// record. A missing record or a degraded shard reports found=false.
func (s *Sharded) UserActivity(ctx context.Context, userID string) (ActivityStatus, bool, error) {
	sh, err := s.shardFor(userID)
	if err != nil {
		return "", false, err
	}
	if !sh.usable(s.retryAfter) {
		return "", false, nil
	}

	rec, found, err := sh.backend.Find(ctx, userID)
	if err != nil {
		sh.markDegraded(err)
		return "", false, fmt.Errorf("find on shard %s: %w", sh.url, err)
	}
	sh.markReady()
	if !found {
		return "", false, nil
	}
	return Classify(rec, time.Now().UTC()), true, nil
}

// EvictOlderThan sweeps every registered shard, deleting records whose
// last update is older than the retention window. A failing shard is
// logged and skipped; the sweep continues with the rest.
func (s *Sharded) EvictOlderThan(ctx context.Context, retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)
	total := 0
	for _, sh := range s.snapshot() {
		if err := ctx.Err(); err != nil {
			return total
		}
		if !sh.usable(s.retryAfter) {
			continue
		}
		n, err := sh.backend.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			sh.markDegraded(err)
			log.Printf("eviction sweep failed on shard %s: %v", sh.url, err)
			continue
		}
		sh.markReady()
		total += n
	}
	return total
}

// Stats aggregates per-shard record counts for observability. A shard
// that cannot answer contributes -1; Stats itself never fails.
func (s *Sharded) Stats(ctx context.Context) map[string]int {
	out := make(map[string]int)
	for _, sh := range s.snapshot() {
		n, err := sh.backend.Count(ctx)
		if err != nil {
			sh.markDegraded(err)
			out[sh.url] = -1
			continue
		}
		out[sh.url] = n
	}
	return out
}

// States exposes the connection state per shard URL.
func (s *Sharded) States() map[string]ShardState {
	out := make(map[string]ShardState)
	for _, sh := range s.snapshot() {
		sh.mu.Lock()
		out[sh.url] = sh.state
		sh.mu.Unlock()
	}
	return out
}

// ShardCount reports how many shards registered successfully.
func (s *Sharded) ShardCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shards)
}

// Close closes every backend and marks the shards closed.
func (s *Sharded) Close() {
	for _, sh := range s.snapshot() {
		sh.mu.Lock()
		sh.state = StateClosed
		sh.mu.Unlock()
		sh.backend.Close()
	}
}

func (s *Sharded) snapshot() []*shard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*shard, len(s.shards))
	copy(out, s.shards)
	return out
}

// usable reports whether the shard should serve traffic. A degraded
// shard stays skipped until retryAfter has elapsed, then one operation
// is allowed through as a probe.
func (sh *shard) usable(retryAfter time.Duration) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	switch sh.state {
	case StateReady, StateConnecting:
		return true
	case StateDegraded:
		if time.Since(sh.degradedAt) >= retryAfter {
			sh.state = StateConnecting
			return true
		}
		return false
	default:
		return false
	}
}

func (sh *shard) markDegraded(err error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.state = StateDegraded
	sh.lastErr = err
	sh.degradedAt = time.Now()
}

func (sh *shard) markReady() {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.state != StateClosed {
		sh.state = StateReady
	}
}

package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/caresignal/triage-platform/internal/triage"
)

// RecentCache keeps the latest assessment per session in Redis so an
// asynchronous distress signal can be attached to the triage context it
// belongs to. Entries expire after the recency window.
type RecentCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRecentCache creates the per-session recency cache. Returns nil for a nil
// client so callers can treat the cache as optional.
func NewRecentCache(client *redis.Client, ttl time.Duration) *RecentCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RecentCache{redis: client, ttl: ttl}
}

// Remember stores the assessment as the session's most recent one.
func (c *RecentCache) Remember(ctx context.Context, a *triage.TriageAssessment) error {
	if c == nil || c.redis == nil || a == nil || a.SessionID == "" {
		return nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("assessment: failed to encode recent assessment: %w", err)
	}
	if err := c.redis.Set(ctx, recentKey(a.SessionID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("assessment: failed to cache recent assessment: %w", err)
	}
	return nil
}

// Lookup returns the session's most recent assessment within the recency
// window, or nil when none exists.
func (c *RecentCache) Lookup(ctx context.Context, sessionID string) (*triage.TriageAssessment, error) {
	if c == nil || c.redis == nil || sessionID == "" {
		return nil, nil
	}
	data, err := c.redis.Get(ctx, recentKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("assessment: failed to load recent assessment: %w", err)
	}
	var a triage.TriageAssessment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("assessment: failed to decode recent assessment: %w", err)
	}
	return &a, nil
}

func recentKey(sessionID string) string {
	return fmt.Sprintf("recent_assessment:%s", sessionID)
}

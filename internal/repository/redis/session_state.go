package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freeeve/markov-rps/internal/model"
)

// Key patterns for Redis session state.
func sessionKey(id string) string { return "session:" + id + ":state" }

const activeSessionsKey = "sessions:active"

// SaveSession stores the session JSON with the given TTL (0 = no expiry)
// and tracks it in the active set.
func (c *Client) SaveSession(ctx context.Context, s *model.Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), data, ttl)
	if s.Status == model.SessionActive {
		expires := time.Now().Add(ttl)
		if ttl <= 0 {
			expires = time.Now().AddDate(100, 0, 0)
		}
		pipe.ZAdd(ctx, activeSessionsKey, redis.Z{Score: float64(expires.Unix()), Member: s.ID})
	} else {
		pipe.ZRem(ctx, activeSessionsKey, s.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session, or nil if it is missing or expired.
func (c *Client) GetSession(ctx context.Context, id string) (*model.Session, error) {
	data, err := c.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

// ActiveSessionCount prunes expired entries from the active set and
// returns how many sessions remain.
func (c *Client) ActiveSessionCount(ctx context.Context) (int64, error) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	if err := c.rdb.ZRemRangeByScore(ctx, activeSessionsKey, "-inf", "("+now).Err(); err != nil {
		return 0, fmt.Errorf("prune active sessions: %w", err)
	}
	n, err := c.rdb.ZCard(ctx, activeSessionsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}

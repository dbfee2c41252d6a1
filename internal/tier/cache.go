package tier

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// CachedSpending fronts the order aggregate with a redis TTL cache. Redis
// failures fall through to the database; the cache is never authoritative.
type CachedSpending struct {
	inner Source
	rdb   *redis.Client
	ttl   time.Duration
	log   *logrus.Entry
}

func NewCachedSpending(inner Source, rdb *redis.Client, ttl time.Duration, log *logrus.Logger) *CachedSpending {
	return &CachedSpending{
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.WithField("component", "spending_cache"),
	}
}

func spendingKey(userID string) string {
	return "loyalty:spending:" + userID
}

func (c *CachedSpending) Spending(ctx context.Context, userID string) (int64, error) {
	cached, err := c.rdb.Get(ctx, spendingKey(userID)).Result()
	if err == nil {
		if total, parseErr := strconv.ParseInt(cached, 10, 64); parseErr == nil {
			return total, nil
		}
	} else if err != redis.Nil {
		c.log.WithError(err).Debug("spending cache read failed")
	}
	total, err := c.inner.Spending(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := c.rdb.Set(ctx, spendingKey(userID), strconv.FormatInt(total, 10), c.ttl).Err(); err != nil {
		c.log.WithError(err).Debug("spending cache write failed")
	}
	return total, nil
}

// Invalidate drops the cached value after an order lands, so the next tier
// read sees the new spending immediately instead of at TTL expiry.
func (c *CachedSpending) Invalidate(ctx context.Context, userID string) {
	if err := c.rdb.Del(ctx, spendingKey(userID)).Err(); err != nil {
		c.log.WithError(err).Debug("spending cache invalidate failed")
	}
}

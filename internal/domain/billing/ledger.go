package billing

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// EventLedger remembers provider event ids that were fully processed so exact
// redeliveries can be acknowledged without touching the database. Applying an
// event twice is already harmless; the ledger only saves work.
type EventLedger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// NopLedger never reports an event as seen.
type NopLedger struct{}

func (NopLedger) Seen(context.Context, string) (bool, error) { return false, nil }
func (NopLedger) Mark(context.Context, string) error         { return nil }

const (
	ledgerKeyPrefix = "cliniccloud:billing:event:"
	// DefaultLedgerTTL outlasts the provider's redelivery window.
	DefaultLedgerTTL = 72 * time.Hour
)

// RedisLedger stores processed event ids as expiring keys.
type RedisLedger struct {
	c   *redis.Client
	ttl time.Duration
}

func NewRedisLedger(c *redis.Client, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	return &RedisLedger{c: c, ttl: ttl}
}

func (l *RedisLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	n, err := l.c.Exists(ctx, ledgerKeyPrefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RedisLedger) Mark(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	return l.c.SetNX(ctx, ledgerKeyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), l.ttl).Err()
}

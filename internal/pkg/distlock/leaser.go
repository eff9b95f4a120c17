package distlock

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
)

// Leaser hands out short-lived, non-blocking leases keyed by an arbitrary
// string (for example "egress:user:<email>").
type Leaser struct {
	redis  *redis.Client
	db     *sql.DB
	ttl    time.Duration
	prefix string
}

// NewLeaser creates a Leaser. Backend selection follows NewLock.
func NewLeaser(redisClient *redis.Client, db *sql.DB, prefix string, ttl time.Duration) *Leaser {
	return &Leaser{redis: redisClient, db: db, ttl: ttl, prefix: prefix}
}

// TryLease attempts to take the lease for key. When acquired is true the
// caller must invoke release once done.
func (l *Leaser) TryLease(ctx context.Context, key string) (release func(context.Context) error, acquired bool, err error) {
	lock := NewLock(l.redis, l.db, l.prefix+key, l.ttl)
	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return lock.Release, true, nil
}

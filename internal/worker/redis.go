package worker

import (
	"context"
	"sync"
	"time"

	"ragchat/internal/redis"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	redisLockPrefix  = "worker:lock:"
	redisLockTTL     = 2 * time.Minute
	redisLockBackoff = 50 * time.Millisecond
)

// RedisLocker serializes turns across processes with SET NX PX.
// While held, the key's expiry is pushed back every ttl/3 so long turns keep
// the lock; a crashed holder releases it after ttl.
type RedisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	backoff time.Duration
	local   *LocalLocker
	logger  *zap.Logger
}

func NewRedisLocker(client *redis.Client, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client:  client,
		ttl:     redisLockTTL,
		backoff: redisLockBackoff,
		local:   NewLocalLocker(),
		logger:  logger,
	}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	// queue local waiters first so only one goroutine per process polls redis
	unlockLocal, err := r.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	redisKey := redisLockPrefix + key
	owner := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, redisKey, owner, r.ttl)
		if err != nil {
			unlockLocal()
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-time.After(r.backoff):
		case <-ctx.Done():
			unlockLocal()
			return nil, ctx.Err()
		}
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		r.renew(stop, key, redisKey, owner)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-renewed
			// the request context may already be done; release with a fresh one
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if _, err := r.client.DelIfValue(ctx, redisKey, owner); err != nil {
				r.logger.Warn("release thread lock", zap.String("key", key), zap.Error(err))
			}
			unlockLocal()
		})
	}, nil
}

// renew extends the lock until stop is closed or ownership is lost.
func (r *RedisLocker) renew(stop <-chan struct{}, key, redisKey, owner string) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
		held, err := r.client.ExpireIfValue(ctx, redisKey, owner, r.ttl)
		cancel()
		switch {
		case err != nil:
			r.logger.Warn("renew thread lock", zap.String("key", key), zap.Error(err))
		case !held:
			r.logger.Warn("thread lock lost before release", zap.String("key", key))
			return
		}
	}
}

package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/redis"
)

// RedsyncLocker holds Redlock mutexes named "lock:<key>". Held locks are renewed at a
// third of their expiry until released, so long critical sections do not lose them.
type RedsyncLocker struct {
	redsync *redsync.Redsync
	expiry  time.Duration
	logger  logging.Logger

	mu   sync.Mutex
	held map[*redsync.Mutex]context.CancelFunc
}

func NewRedsyncLocker(redisClient *redis.Client, expiry time.Duration, logger logging.Logger) (*RedsyncLocker, error) {
	if redisClient == nil {
		return nil, errors.ConfigError("redis client is required")
	}
	if expiry <= 0 {
		expiry = 10 * time.Second
	}

	pool := goredis.NewPool(redisClient.Raw())

	return &RedsyncLocker{
		redsync: redsync.New(pool),
		expiry:  expiry,
		logger:  logging.OrGlobal(logger).WithFields(logging.Field{"component", "redsync_locker"}),
		held:    make(map[*redsync.Mutex]context.CancelFunc),
	}, nil
}

func (r *RedsyncLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	mutex := r.redsync.NewMutex(fmt.Sprintf("lock:%s", key),
		redsync.WithExpiry(r.expiry),
		redsync.WithTries(64),
		redsync.WithRetryDelay(50*time.Millisecond),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.DependencyUnavailableError("distributed_lock", err)
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.held[mutex] = cancel
	r.mu.Unlock()

	go r.renew(renewCtx, mutex)

	var once sync.Once
	return func() {
		once.Do(func() { r.release(mutex) })
	}, nil
}

func (r *RedsyncLocker) renew(ctx context.Context, mutex *redsync.Mutex) {
	interval := r.expiry / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			extendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			ok, err := mutex.ExtendContext(extendCtx)
			cancel()
			if err != nil || !ok {
				r.logger.Warn("Lost distributed lock",
					logging.Field{"lock", mutex.Name()},
					logging.Err(err),
				)
				return
			}
		}
	}
}

func (r *RedsyncLocker) release(mutex *redsync.Mutex) {
	r.mu.Lock()
	if cancel, ok := r.held[mutex]; ok {
		cancel()
		delete(r.held, mutex)
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := mutex.UnlockContext(ctx); err != nil {
		r.logger.Warn("Failed to release distributed lock",
			logging.Field{"lock", mutex.Name()},
			logging.Err(err),
		)
	}
}

// Close releases every lock still held by this locker
func (r *RedsyncLocker) Close() error {
	r.mu.Lock()
	mutexes := make([]*redsync.Mutex, 0, len(r.held))
	for m := range r.held {
		mutexes = append(mutexes, m)
	}
	r.mu.Unlock()

	for _, m := range mutexes {
		r.release(m)
	}
	return nil
}

// Held reports how many locks are currently held
func (r *RedsyncLocker) Held() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held)
}

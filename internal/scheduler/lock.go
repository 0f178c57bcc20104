package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/home-express/finance-core/pkg/logger"
	"github.com/home-express/finance-core/pkg/redis"
)

var ErrLockHeld = errors.New("job lock held by another instance")

const lockKeyPrefix = "scheduler:lock:"

// Lock keeps a batch job from running on two scheduler instances at once.
type Lock interface {
	Acquire(job string, ttl time.Duration) (release func(), err error)
}

// RedisLock is a SET NX lease holding a random token. Release only deletes
// the key while it still holds that token, so an expired lease taken over by
// another instance is left alone.
type RedisLock struct {
	redis redis.RedisAdapter
}

func NewRedisLock(adapter redis.RedisAdapter) *RedisLock {
	return &RedisLock{redis: adapter}
}

func (l *RedisLock) Acquire(job string, ttl time.Duration) (func(), error) {
	key := lockKeyPrefix + job
	token := []byte(uuid.NewString())

	acquired, err := l.redis.SetNX(key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !acquired {
		return nil, ErrLockHeld
	}
	logger.Debug("scheduler lock acquired", "job", job, "ttl", ttl)

	return func() {
		released, err := l.redis.DelIfEquals(key, token)
		if err != nil {
			logger.Warn("failed to release scheduler lock", "job", job, "error", err)
			return
		}
		if !released {
			logger.Warn("scheduler lock expired before the job finished", "job", job, "ttl", ttl)
		}
	}, nil
}

// LocalLock serialises jobs inside one process. Use it only when a single
// scheduler instance runs.
type LocalLock struct {
	held map[string]chan struct{}
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]chan struct{})}
}

func (l *LocalLock) Acquire(job string, _ time.Duration) (func(), error) {
	ch, ok := l.held[job]
	if !ok {
		// jobs are registered before Start, so the map is not written concurrently
		return nil, fmt.Errorf("unknown job %q", job)
	}
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	default:
		return nil, ErrLockHeld
	}
}

func (l *LocalLock) register(job string) {
	if _, ok := l.held[job]; !ok {
		l.held[job] = make(chan struct{}, 1)
	}
}

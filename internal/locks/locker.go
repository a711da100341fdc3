// Package locks serializes work per key.
//
// KeyedMutex covers goroutines inside one process. RedsyncLocker extends the guarantee
// across replicas sharing a Redis instance using the Redlock algorithm from
// go-redsync/redsync/v4. Chain stacks them so the distributed lock is only
// contended by one goroutine per process at a time.
package locks

import (
	"context"
)

// Unlock releases a lock obtained from a Locker. It is safe to call more than once.
type Unlock func()

// Locker acquires an exclusive lock for key, blocking until it is held or ctx is done
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

type chain []Locker

// Chain acquires every locker in order and releases them in reverse order
func Chain(lockers ...Locker) Locker {
	var c chain
	for _, l := range lockers {
		if l != nil {
			c = append(c, l)
		}
	}
	return c
}

func (c chain) Lock(ctx context.Context, key string) (Unlock, error) {
	held := make([]Unlock, 0, len(c))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}

	for _, l := range c {
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, unlock)
	}
	return release, nil
}

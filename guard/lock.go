package guard

import "context"

// Lock is a single-slot mutual exclusion lock whose acquisition can be
// abandoned through a context.
type Lock struct {
	ch chan struct{}
}

// NewLock creates an unlocked Lock.
func NewLock() *Lock {
	return &Lock{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is held or ctx is done.
func (l *Lock) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the lock if it is free.
func (l *Lock) TryAcquire() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the lock. Releasing an unlocked Lock panics.
func (l *Lock) Release() {
	select {
	case <-l.ch:
	default:
		panic("guard: release of unlocked Lock")
	}
}

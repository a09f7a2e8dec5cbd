package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Locker serializes operations on a session. Waiters give up after the
// timeout with ErrBusy.
type Locker struct {
	mu      sync.Mutex
	locks   map[string]*lockEntry
	timeout time.Duration
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func NewLocker(timeout time.Duration) *Locker {
	return &Locker{
		locks:   make(map[string]*lockEntry),
		timeout: timeout,
	}
}

// Lock acquires the session lock and returns the function that releases it
func (l *Locker) Lock(ctx context.Context, id string) (func(), error) {
	entry := l.acquire(id)

	var timeout <-chan time.Time
	if l.timeout > 0 {
		timer := time.NewTimer(l.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(id)
		return nil, ctx.Err()
	case <-timeout:
		l.release(id)
		return nil, fmt.Errorf("%w: %s is locked by another request", ErrBusy, id)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.release(id)
		})
	}, nil
}

// TryLock acquires the session lock only if nobody holds it
func (l *Locker) TryLock(id string) (func(), bool) {
	entry := l.acquire(id)

	select {
	case entry.sem <- struct{}{}:
	default:
		l.release(id)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.release(id)
		})
	}, true
}

func (l *Locker) acquire(id string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[id] = entry
	}
	entry.refs++
	return entry
}

func (l *Locker) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.locks[id]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
}

// Held reports how many sessions currently have holders or waiters
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

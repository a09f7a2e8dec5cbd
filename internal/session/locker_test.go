package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockerSerializesSameSession(t *testing.T) {
	l := NewLocker(time.Second)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "s1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, l.Held())
}

func TestLockerIndependentSessions(t *testing.T) {
	l := NewLocker(10 * time.Millisecond)
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLockerTimesOut(t *testing.T) {
	l := NewLocker(20 * time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "s1")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "s1")
	assert.ErrorIs(t, err, ErrBusy)

	unlock()
	unlock() // releasing twice is harmless

	unlock, err = l.Lock(ctx, "s1")
	require.NoError(t, err)
	unlock()
	assert.Equal(t, 0, l.Held())
}

func TestLockerContextCancel(t *testing.T) {
	l := NewLocker(time.Minute)

	unlock, err := l.Lock(context.Background(), "s1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "s1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTryLock(t *testing.T) {
	l := NewLocker(time.Second)

	unlock, ok := l.TryLock("s1")
	require.True(t, ok)

	_, ok = l.TryLock("s1")
	assert.False(t, ok)

	other, ok := l.TryLock("s2")
	require.True(t, ok)
	other()

	unlock()
	unlock()
	assert.Equal(t, 0, l.Held())

	again, ok := l.TryLock("s1")
	require.True(t, ok)
	again()
}

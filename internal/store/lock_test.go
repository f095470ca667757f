package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalLockerExcludesSameKey(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Acquire(t.Context(), "berlin")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "berlin")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := l.Acquire(t.Context(), "paris")
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := l.Acquire(t.Context(), "berlin")
	require.NoError(t, err)
	again()

	l.mu.Lock()
	require.Empty(t, l.locks)
	l.mu.Unlock()
}

func TestLocalLockerSerializesHolders(t *testing.T) {
	l := NewLocalLocker()
	var mu sync.Mutex
	active, maxActive := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "k")
			if err != nil {
				return
			}
			defer release()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxActive)
}

func TestNopLocker(t *testing.T) {
	release, err := NopLocker{}.Acquire(t.Context(), "x")
	require.NoError(t, err)
	release()
}

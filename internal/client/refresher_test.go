package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRefresher_SingleFlight — параллельные вызовы в одном поколении дают одно обновление.
func TestRefresher_SingleFlight(t *testing.T) {
	t.Parallel()

	var calls int32
	release := make(chan struct{})
	r := NewRefresher(func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	}, nil)

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() { errs <- r.Refresh(context.Background(), 0) }()
	}

	// Даём вызовам присоединиться к выполняющемуся обновлению.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.EqualValues(t, 1, r.Generation())
}

// TestRefresher_LateCallerSkips — 401 от запроса предыдущего поколения не запускает второе обновление.
func TestRefresher_LateCallerSkips(t *testing.T) {
	t.Parallel()

	var calls int32
	r := NewRefresher(func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, nil)

	require.NoError(t, r.Refresh(context.Background(), 0))
	require.NoError(t, r.Refresh(context.Background(), 0))
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// Запрос нового поколения обновляет снова.
	require.NoError(t, r.Refresh(context.Background(), r.Generation()))
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestRefresher_FailureLogsOut(t *testing.T) {
	t.Parallel()

	var calls, logouts int32
	errRefresh := errors.New("status=403")
	release := make(chan struct{})
	r := NewRefresher(func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return errRefresh
	}, func() { atomic.AddInt32(&logouts, 1) })

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Refresh(context.Background(), 0)
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		require.ErrorIs(t, err, ErrLoggedOut)
	}
	require.True(t, r.LoggedOut())
	require.EqualValues(t, 1, atomic.LoadInt32(&logouts))

	// В состоянии «не авторизован» обновление больше не запускается.
	require.ErrorIs(t, r.Refresh(context.Background(), r.Generation()), ErrLoggedOut)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// Новый вход возвращает координатор в рабочее состояние.
	r.Reset()
	require.False(t, r.LoggedOut())
}

// TestRefresher_WaiterCancel — отмена ожидающего не отменяет само обновление.
func TestRefresher_WaiterCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	finished := make(chan struct{})
	r := NewRefresher(func(ctx context.Context) error {
		<-release
		close(finished)
		return ctx.Err()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Refresh(ctx, 0) }()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	<-finished
	require.Eventually(t, func() bool { return r.Generation() == 1 }, time.Second, time.Millisecond)
	require.False(t, r.LoggedOut())
}

package token_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"farecraft/models"
	"farecraft/token"
	"farecraft/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_ConcurrentCallersShareOneAcquisition(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	coord := token.NewCoordinator(func(ctx context.Context, scopeKey string) (models.TokenSet, error) {
		calls.Add(1)
		<-release
		return models.TokenSet{ScopeKey: scopeKey, Values: trustedCookies(), ExpiresAt: time.Now().Add(time.Hour)}, nil
	}, utils.NewNopLogger())

	const callers = 8
	var wg sync.WaitGroup
	results := make([]models.TokenSet, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coord.Acquire(context.Background(), "aa-booking")
		}(i)
	}

	require.Eventually(t, func() bool {
		return coord.State("aa-booking") == token.Acquiring
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "sess-123", results[i].Get("spa_session_id"))
	}
	assert.Equal(t, token.Idle, coord.State("aa-booking"))
}

func TestCoordinator_WaitersSeeLeaderError(t *testing.T) {
	release := make(chan struct{})
	boom := models.NewError(models.KindAcquisitionFailed, nil, "sensor blocked")
	coord := token.NewCoordinator(func(ctx context.Context, scopeKey string) (models.TokenSet, error) {
		<-release
		return models.TokenSet{}, boom
	}, utils.NewNopLogger())

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coord.Acquire(context.Background(), "aa-booking")
		}(i)
	}
	require.Eventually(t, func() bool {
		return coord.State("aa-booking") == token.Acquiring
	}, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.True(t, errors.Is(err, models.ErrAcquisitionFailed))
	}
}

func TestCoordinator_ScopesAreIndependent(t *testing.T) {
	var calls atomic.Int32
	coord := token.NewCoordinator(func(ctx context.Context, scopeKey string) (models.TokenSet, error) {
		calls.Add(1)
		return models.TokenSet{ScopeKey: scopeKey}, nil
	}, utils.NewNopLogger())

	a, err := coord.Acquire(context.Background(), "a")
	require.NoError(t, err)
	b, err := coord.Acquire(context.Background(), "b")
	require.NoError(t, err)

	assert.Equal(t, "a", a.ScopeKey)
	assert.Equal(t, "b", b.ScopeKey)
	assert.EqualValues(t, 2, calls.Load())
}

func TestCoordinator_WaiterHonoursOwnContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	coord := token.NewCoordinator(func(ctx context.Context, scopeKey string) (models.TokenSet, error) {
		<-release
		return models.TokenSet{}, nil
	}, utils.NewNopLogger())

	go func() { _, _ = coord.Acquire(context.Background(), "aa-booking") }()
	require.Eventually(t, func() bool {
		return coord.State("aa-booking") == token.Acquiring
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := coord.Acquire(ctx, "aa-booking")

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCoordinator_LeaderCancellationDoesNotFailWaiters(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	coord := token.NewCoordinator(func(ctx context.Context, scopeKey string) (models.TokenSet, error) {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
			return models.TokenSet{}, ctx.Err()
		}
		return models.TokenSet{ScopeKey: scopeKey, Values: trustedCookies()}, nil
	}, utils.NewNopLogger())

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := coord.Acquire(leaderCtx, "aa-booking")
		leaderErr <- err
	}()
	require.Eventually(t, func() bool {
		return coord.State("aa-booking") == token.Acquiring
	}, time.Second, time.Millisecond)

	waiter := make(chan error, 1)
	var got models.TokenSet
	go func() {
		var err error
		got, err = coord.Acquire(context.Background(), "aa-booking")
		waiter <- err
	}()
	time.Sleep(10 * time.Millisecond)

	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	require.NoError(t, <-waiter)
	assert.Equal(t, "sess-123", got.Get("spa_session_id"))
	assert.EqualValues(t, 1, calls.Load())
}

func TestCoordinator_TimeoutBoundsAcquisition(t *testing.T) {
	coord := token.NewCoordinator(func(ctx context.Context, scopeKey string) (models.TokenSet, error) {
		<-ctx.Done()
		return models.TokenSet{}, ctx.Err()
	}, utils.NewNopLogger())
	coord.SetTimeout(20 * time.Millisecond)

	_, err := coord.Acquire(context.Background(), "aa-booking")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, token.Idle, coord.State("aa-booking"))
}

func TestCoordinator_RefreshReusesNewerAcquisition(t *testing.T) {
	var calls atomic.Int32
	coord := token.NewCoordinator(func(ctx context.Context, scopeKey string) (models.TokenSet, error) {
		n := calls.Add(1)
		return models.TokenSet{
			ScopeKey:    scopeKey,
			Values:      map[string]string{"spa_session_id": fmt.Sprintf("sess-%d", n)},
			RefreshedAt: time.Now(),
		}, nil
	}, utils.NewNopLogger())

	stale := models.TokenSet{ScopeKey: "aa-booking", RefreshedAt: time.Now().Add(-time.Hour)}

	first, err := coord.Refresh(context.Background(), "aa-booking", stale)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", first.Get("spa_session_id"))

	// A second branch rejected with the same stale set gets the newer result.
	second, err := coord.Refresh(context.Background(), "aa-booking", stale)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", second.Get("spa_session_id"))
	assert.EqualValues(t, 1, calls.Load())

	// The newest set itself being rejected forces another acquisition.
	third, err := coord.Refresh(context.Background(), "aa-booking", first)
	require.NoError(t, err)
	assert.Equal(t, "sess-2", third.Get("spa_session_id"))
	assert.EqualValues(t, 2, calls.Load())
}

package flight

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/singleflight"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDo_CancelledCallerDoesNotFailOthers(t *testing.T) {
	var g singleflight.Group
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return "content", ctx.Err()
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := Do(firstCtx, &g, "l1", time.Second, fn)
		firstErr <- err
	}()
	<-started

	type result struct {
		val string
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := Do(context.Background(), &g, "l1", time.Second, fn)
		second <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "content", got.val)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_SharedCallTimesOut(t *testing.T) {
	var g singleflight.Group
	_, err := Do(context.Background(), &g, "slow", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDo_ReturnsError(t *testing.T) {
	var g singleflight.Group
	boom := errors.New("boom")
	_, err := Do(context.Background(), &g, "k", 0, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, boom
	})
	assert.ErrorIs(t, err, boom)
}

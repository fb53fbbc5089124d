// Package flight shares one in-flight call between concurrent callers.
package flight

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a shared call once it is detached from its callers.
const DefaultTimeout = 30 * time.Second

// Do runs fn once per key for all concurrent callers. fn gets a context
// that survives any single caller's cancellation and expires after
// timeout. Each caller stops waiting when its own ctx is done.
func Do[T any](ctx context.Context, g *singleflight.Group, key string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	detached := context.WithoutCancel(ctx)
	ch := g.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()
		return fn(callCtx)
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout runs fn under a deadline derived from ctx. fn must honour its
// context. A non-positive timeout runs fn with ctx unchanged.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(deadlineCtx)
	if err != nil && ctx.Err() == nil && errors.Is(deadlineCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: exceeded %v: %w", name, timeout, err)
	}
	return err
}

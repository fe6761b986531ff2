package resilience

import (
	"context"
	"errors"
	"time"
)

// ExecuteWithTimeout runs op with a deadline of d. A deadline hit by this
// timeout is reported as ErrTimeout; a deadline or cancellation inherited
// from ctx is returned as is.
//
// op must honor ctx; the call does not return before op does.
func ExecuteWithTimeout(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	if d <= 0 {
		return op(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := op(tctx)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	return err
}

package observe

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// Future is the pending result of an asynchronous call.
//
// Contract:
//   - Concurrency: all methods are safe for concurrent use.
//   - Await may be called any number of times; every caller sees the same result.
//   - A panic raised by the producing goroutine is re-raised by Await.
type Future[R any] struct {
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc

	value R
	err   error
	panic *PanicError
}

func newFuture[R any](cancel context.CancelFunc) *Future[R] {
	if cancel == nil {
		cancel = func() {}
	}
	return &Future[R]{
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Completed returns a Future that is already resolved.
func Completed[R any](value R, err error) *Future[R] {
	f := newFuture[R](nil)
	f.resolve(value, err)
	return f
}

// Done returns a channel that is closed once the result is available.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// Cancel cancels the context handed to the producing function.
// It does not wait for the producer to observe the cancellation.
func (f *Future[R]) Cancel() {
	f.cancel()
}

// Await blocks until the result is available or ctx is done.
// When ctx ends first the call is cancelled and ctx.Err() is returned.
// A result that is already available is always returned.
func (f *Future[R]) Await(ctx context.Context) (R, error) {
	select {
	case <-f.done:
	default:
		select {
		case <-f.done:
		case <-ctx.Done():
			f.cancel()
			var zero R
			return zero, ctx.Err()
		}
	}

	if f.panic != nil {
		panic(f.panic.Value)
	}
	return f.value, f.err
}

// outcome waits for the result without re-raising panics.
func (f *Future[R]) outcome() (R, error, *PanicError) {
	<-f.done
	return f.value, f.err, f.panic
}

func (f *Future[R]) resolve(value R, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

func (f *Future[R]) fail(pe *PanicError) {
	f.once.Do(func() {
		f.panic = pe
		close(f.done)
	})
}

// Go adapts a blocking function into an AsyncFunc. Each call runs fn on its
// own goroutine with a cancellable child of the caller's context.
func Go[A, R any](fn Func[A, R]) AsyncFunc[A, R] {
	return func(ctx context.Context, args A) *Future[R] {
		ctx, cancel := context.WithCancel(ctx)
		f := newFuture[R](cancel)

		go func() {
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					f.fail(newPanicError(r))
				}
			}()
			value, err := fn(ctx, args)
			f.resolve(value, err)
		}()

		return f
	}
}

// PanicError is recorded on a span when a traced function panics.
// Stack is captured in the goroutine that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

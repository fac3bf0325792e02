// Package async provides a small generic Future for running a computation in
// its own goroutine and racing it against a deadline.
//
// Async starts the supplied function and immediately returns a *Future. The
// caller either blocks with Await, or races the computation against a context
// with AwaitContext. When the context wins, the late result is dropped on the
// floor: it is never observed by the caller.
//
// # Usage
//
//	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
//	defer cancel()
//
//	future := async.Async(ctx, "acme.example.com", store.FindByDomain)
//	t, err := future.AwaitContext(ctx)
//	if errors.Is(err, context.DeadlineExceeded) {
//		// the lookup lost the race against the timer
//	}
//
// # Error Handling
//
// Futures return the error produced by the callback, the context error when
// the context is done first, or an error wrapping ErrPanic when the callback
// panicked.
package async

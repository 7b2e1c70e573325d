// Package async runs work on its own goroutine and hands back a Future.
//
// Detach is used for calls whose side effects must survive the caller: the
// function receives a context that keeps the caller's values but ignores its
// cancellation, so an HTTP client hanging up does not abort a paid upstream
// call that is already in flight.
//
//	f := async.Detach(ctx, func(ctx context.Context) (*Reply, error) {
//		return provider.Chat(ctx, req)
//	})
//	reply, err := f.AwaitContext(ctx) // returns ctx.Err() early; work continues
package async

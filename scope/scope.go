// Package scope carries the tenant store identity on a context.Context.
//
// Submit captures the store ID from the caller's context when the job
// does not set one, and the scope middleware restores it before the
// handler runs, so handlers see the same store as the submitting request.
package scope

import "context"

type storeKey struct{}

// WithStoreID returns a copy of ctx carrying storeID. An empty storeID
// returns ctx unchanged.
func WithStoreID(ctx context.Context, storeID string) context.Context {
	if storeID == "" {
		return ctx
	}
	return context.WithValue(ctx, storeKey{}, storeID)
}

// Capture returns the store ID on ctx, or "" if none is present.
func Capture(ctx context.Context) string {
	s, _ := ctx.Value(storeKey{}).(string)
	return s
}

// Restore attaches storeID to ctx. It is WithStoreID under the name the
// middleware uses when replaying a job's scope.
func Restore(ctx context.Context, storeID string) context.Context {
	return WithStoreID(ctx, storeID)
}

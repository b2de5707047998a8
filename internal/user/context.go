package user

import "context"

type contextKey struct{}

// WithProfile attaches the authenticated user's projection to ctx.
func WithProfile(ctx context.Context, p Profile) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func ProfileFromContext(ctx context.Context) (Profile, bool) {
	p, ok := ctx.Value(contextKey{}).(Profile)
	return p, ok
}

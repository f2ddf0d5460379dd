package activity

import "context"

type originKey struct{}

// WithOrigin marks the context with the entry point performing the request.
func WithOrigin(ctx context.Context, origin Origin) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the origin recorded on the context, defaulting to REST.
func OriginFrom(ctx context.Context) Origin {
	if origin, ok := ctx.Value(originKey{}).(Origin); ok {
		return origin
	}
	return OriginREST
}

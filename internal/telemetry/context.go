package telemetry

import "context"

type contextKey int

const clientKey contextKey = iota

// WithClient attaches a telemetry Client to ctx, for PersistentPostRun to
// retrieve without threading it through every command's RunE signature.
func WithClient(ctx context.Context, client Client) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// GetClient returns the Client attached to ctx, or a NoOpClient if none was
// attached — callers never need a nil check.
func GetClient(ctx context.Context) Client {
	if ctx == nil {
		return NoOpClient{}
	}
	if c, ok := ctx.Value(clientKey).(Client); ok && c != nil {
		return c
	}
	return NoOpClient{}
}

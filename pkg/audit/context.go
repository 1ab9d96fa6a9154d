package audit

import "context"

type sourceKey struct{}

// WithSource tags ctx with the surface issuing vault operations.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the source stored in ctx, or SourceCLI.
func SourceFrom(ctx context.Context) string {
	if ctx != nil {
		if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
			return s
		}
	}
	return SourceCLI
}

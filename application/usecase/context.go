package usecase

import "context"

type clientIPKey struct{}

// WithClientIP stores the caller address for rate limiting and audit logs.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPOf reports the caller address stored by WithClientIP.
func ClientIPOf(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPKey{}).(string)
	return ip, ok && ip != ""
}

func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ClientIPOf(ctx); ok {
		return ip
	}
	return "unknown"
}

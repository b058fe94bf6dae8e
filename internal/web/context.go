package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

// WithRequestMetadata records who started a run from this request.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr // Already processed by TrustedRealIP
	ctx = core.ContextWithIPAddress(ctx, ip)
	ctx = core.ContextWithUserAgent(ctx, r.Header.Get("User-Agent"))
	return core.ContextWithTrigger(ctx, "web")
}

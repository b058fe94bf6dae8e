package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "run_ip"
	ctxKeyUserAgent contextKey = "run_ua"
	ctxKeyTrigger   contextKey = "run_trigger"
)

// ContextWithIPAddress records the client address that started a run.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent records the client User-Agent that started a run.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ContextWithTrigger records what started a run: "web" or "cli".
func ContextWithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, ctxKeyTrigger, trigger)
}

// Origin describes who started a run. It is stored with the run report.
type Origin struct {
	Trigger   string `json:"trigger,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// OriginFromContext collects the run origin stored in ctx.
func OriginFromContext(ctx context.Context) Origin {
	var o Origin
	if v, ok := ctx.Value(ctxKeyTrigger).(string); ok {
		o.Trigger = v
	}
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		o.IPAddress = v
	}
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		o.UserAgent = v
	}
	return o
}

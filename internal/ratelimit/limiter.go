package ratelimit

import "context"

// RateLimiter bounds the send rate toward the push and SMS gateways. Each
// channel gets its own budget; realtime delivery is in-process and never
// throttled.
type RateLimiter interface {
	// Allow reports whether one send fits in the channel's current window.
	Allow(ctx context.Context, channel string) (bool, error)
	// Wait blocks until a send is permitted or the context is done.
	Wait(ctx context.Context, channel string) error
}

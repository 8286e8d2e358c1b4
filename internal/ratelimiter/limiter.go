// Package ratelimiter caps outbound provider traffic per channel.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/finflow/finqueue/internal/domain"
)

// ChannelLimiters holds one token bucket per outbound channel. Burst equals
// the per-second rate so no extra capacity can be saved up above the limit.
// Websocket delivery is in-process and is not limited.
type ChannelLimiters struct {
	limiters map[domain.Channel]*rate.Limiter
}

// New creates limiters granting ratePerSec tokens per second per channel.
func New(ratePerSec int) *ChannelLimiters {
	r := rate.Limit(ratePerSec)
	return &ChannelLimiters{
		limiters: map[domain.Channel]*rate.Limiter{
			domain.ChannelPush:  rate.NewLimiter(r, ratePerSec),
			domain.ChannelEmail: rate.NewLimiter(r, ratePerSec),
			domain.ChannelSMS:   rate.NewLimiter(r, ratePerSec),
		},
	}
}

// Wait blocks until the channel's limiter grants a token. Channels without a
// limiter pass immediately. Returns a non-nil error only if ctx is cancelled
// while waiting.
func (cl *ChannelLimiters) Wait(ctx context.Context, ch domain.Channel) error {
	lim, ok := cl.limiters[ch]
	if !ok {
		return nil
	}
	return lim.Wait(ctx)
}

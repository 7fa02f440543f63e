package ratelimit

import (
	"context"
	"fmt"

	"github.com/smallbiznis/bloodbridge/internal/config"
	"go.uber.org/zap"
)

// DonorAcceptLimiter throttles donor accept attempts per donor. A nil
// limiter allows everything, so the feature is safe to leave disabled.
type DonorAcceptLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewDonorAcceptLimiter(cfg config.Config, bucket *TokenBucket, log *zap.Logger) *DonorAcceptLimiter {
	if !cfg.RateLimit.Enabled || bucket == nil {
		return nil
	}
	rate := cfg.RateLimit.DonorAcceptRate
	if rate <= 0 {
		rate = 1
	}
	burst := cfg.RateLimit.DonorAcceptBurst
	if burst <= 0 {
		burst = 5
	}
	return &DonorAcceptLimiter{
		bucket: bucket,
		rate:   rate,
		burst:  burst,
		log:    log.Named("ratelimit.donor_accept"),
	}
}

func (l *DonorAcceptLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow fails open on Redis errors so donations are never blocked by an
// unavailable limiter.
func (l *DonorAcceptLimiter) Allow(ctx context.Context, donorID string) bool {
	if !l.Enabled() {
		return true
	}
	key := fmt.Sprintf("ratelimit:donor_accept:%s", donorID)
	result, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.Error(err))
		return true
	}
	return result.Allowed
}

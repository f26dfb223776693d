package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/neuron-e/api-boukii-sub004/internal/config"
	"github.com/neuron-e/api-boukii-sub004/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyReservationClient = "boukii:reserve:client:%s"

// ReservationLimiter throttles reservation attempts per client account so a
// single client cannot monopolise slot row locks. A nil limiter allows all.
type ReservationLimiter struct {
	bucket  *TokenBucket
	rate    float64
	burst   int
	metrics *metrics.RateLimitMetrics
	log     *zap.Logger
}

func NewReservationLimiter(client *redis.Client, cfg config.Config, m *metrics.RateLimitMetrics, log *zap.Logger) *ReservationLimiter {
	if client == nil || !cfg.ReserveRateLimitEnabled {
		return nil
	}
	if cfg.ReserveRatePerSecond <= 0 || cfg.ReserveBurst <= 0 {
		log.Warn("reservation rate limit disabled: rate and burst must be positive")
		return nil
	}
	return &ReservationLimiter{
		bucket:  NewTokenBucket(client),
		rate:    cfg.ReserveRatePerSecond,
		burst:   cfg.ReserveBurst,
		metrics: m,
		log:     log.Named("ratelimit.reservation"),
	}
}

// Allow charges one token per requested slot. It fails open when redis is
// unavailable; row locks still bound capacity.
func (l *ReservationLimiter) Allow(ctx context.Context, clientID snowflake.ID, slots int) Result {
	if l == nil {
		return Result{Allowed: true}
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyReservationClient, clientID.String()), l.rate, l.burst, slots)
	if err != nil {
		l.log.Warn("reservation rate limit check failed", zap.Error(err))
		l.metrics.RecordAllowed(ctx, metrics.RateLimitFailOpen)
		return Result{Allowed: true, Limit: l.burst}
	}
	if res.Allowed {
		l.metrics.RecordAllowed(ctx, "")
	} else {
		l.metrics.RecordDenied(ctx)
	}
	return res
}

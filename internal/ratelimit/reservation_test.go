package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/neuron-e/api-boukii-sub004/internal/config"
	"github.com/neuron-e/api-boukii-sub004/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

func TestNilReservationLimiterAllows(t *testing.T) {
	var l *ReservationLimiter
	res := l.Allow(context.Background(), 42, 3)
	assert.True(t, res.Allowed)
}

func TestNewReservationLimiterRequiresSettings(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	log := zap.NewNop()

	cfg := config.Config{ReserveRateLimitEnabled: true, ReserveRatePerSecond: 2, ReserveBurst: 10}
	assert.Nil(t, NewReservationLimiter(nil, cfg, nil, log))
	assert.Nil(t, NewReservationLimiter(client, config.Config{ReserveRatePerSecond: 2, ReserveBurst: 10}, nil, log))
	assert.Nil(t, NewReservationLimiter(client, config.Config{ReserveRateLimitEnabled: true, ReserveBurst: 10}, nil, log))

	l := NewReservationLimiter(client, cfg, nil, log)
	require.NotNil(t, l)
	assert.Equal(t, 10, l.burst)
}

func TestReservationLimiterFailsOpen(t *testing.T) {
	m, err := metrics.NewRateLimitMetrics(metrics.Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	l := &ReservationLimiter{burst: 5, rate: 1, metrics: m, log: zap.NewNop()}

	res := l.Allow(context.Background(), 42, 1)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Limit)
}

func TestTokenBucketRequiresClient(t *testing.T) {
	var b *TokenBucket
	_, err := b.Allow(context.Background(), "k", 1, 1, 1)
	assert.Error(t, err)
	assert.Nil(t, NewTokenBucket(nil))
}

func TestTokenBucketRefusesCostAboveBurst(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	res, err := NewTokenBucket(client).Allow(context.Background(), "k", 1, 2, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, retryAfter(0.5, 2, 1))
	assert.Zero(t, retryAfter(3, 2, 1))
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, bucketTTL(1, 10))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestScriptValueConversion(t *testing.T) {
	assert.EqualValues(t, 1, toInt(int64(1)))
	assert.EqualValues(t, 3, toInt("3"))
	assert.InDelta(t, 0.5, toFloat("0.5"), 1e-9)
	assert.InDelta(t, 2, toFloat(int64(2)), 1e-9)
	assert.Zero(t, toFloat(nil))
}

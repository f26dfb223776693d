package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// OtelConfig configures the OTLP meter provider. Prometheus collectors stay
// on /metrics; OTLP carries the signals pushed to the collector.
type OtelConfig struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
}

// NewMeterProvider configures and registers the global meter provider.
func NewMeterProvider(lc fx.Lifecycle, cfg OtelConfig, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, strings.TrimSpace(cfg.ExporterEndpoint))
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("otlp metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

const (
	RateLimitExhausted = "exhausted"
	RateLimitFailOpen  = "fail_open"
)

// RateLimitMetrics counts reservation throttling decisions.
type RateLimitMetrics struct {
	allowed metric.Int64Counter
	denied  metric.Int64Counter
}

func NewRateLimitMetrics(cfg Config, provider metric.MeterProvider) (*RateLimitMetrics, error) {
	meter := provider.Meter(nonEmpty(cfg.ServiceName, "boukii-booking"))

	allowed, err := meter.Int64Counter("boukii_reservation_rate_limit_allowed_total",
		metric.WithDescription("Reservation attempts admitted by the per-client limiter."))
	if err != nil {
		return nil, err
	}
	denied, err := meter.Int64Counter("boukii_reservation_rate_limit_denied_total",
		metric.WithDescription("Reservation attempts refused by the per-client limiter."))
	if err != nil {
		return nil, err
	}
	return &RateLimitMetrics{allowed: allowed, denied: denied}, nil
}

// RecordAllowed counts an admitted attempt; reason is empty unless the
// limiter failed open.
func (m *RateLimitMetrics) RecordAllowed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.allowed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", nonEmpty(reason, "ok"))))
}

func (m *RateLimitMetrics) RecordDenied(ctx context.Context) {
	if m == nil {
		return
	}
	m.denied.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", RateLimitExhausted)))
}

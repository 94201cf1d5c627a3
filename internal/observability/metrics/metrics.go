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

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	proxyRequests metric.Int64Counter
	settlements   metric.Int64Counter
	settledSats   metric.Int64Counter
	challenges    metric.Int64Counter
	topupsPaid    metric.Int64Counter
	payouts       metric.Int64Counter
	railErrors    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
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
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "satgate"
	}
	meter := provider.Meter(name)

	proxyRequests, err := meter.Int64Counter("satgate_proxy_requests_total")
	if err != nil {
		return nil, err
	}
	settlements, err := meter.Int64Counter("satgate_settlements_total")
	if err != nil {
		return nil, err
	}
	settledSats, err := meter.Int64Counter("satgate_settled_sats_total")
	if err != nil {
		return nil, err
	}
	challenges, err := meter.Int64Counter("satgate_challenges_total")
	if err != nil {
		return nil, err
	}
	topupsPaid, err := meter.Int64Counter("satgate_topups_paid_total")
	if err != nil {
		return nil, err
	}
	payouts, err := meter.Int64Counter("satgate_payouts_total")
	if err != nil {
		return nil, err
	}
	railErrors, err := meter.Int64Counter("satgate_rail_errors_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		proxyRequests: proxyRequests,
		settlements:   settlements,
		settledSats:   settledSats,
		challenges:    challenges,
		topupsPaid:    topupsPaid,
		payouts:       payouts,
		railErrors:    railErrors,
	}, nil
}

// RecordProxyRequest increments proxied request counts by outcome.
func (m *Metrics) RecordProxyRequest(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.proxyRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSettlement increments settlement counts and the settled sat volume.
func (m *Metrics) RecordSettlement(ctx context.Context, kind string, sats int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.settlements.Add(ctx, 1, metric.WithAttributes(attrs...))
	if sats > 0 {
		m.settledSats.Add(ctx, sats, metric.WithAttributes(attrs...))
	}
}

// RecordChallenge increments payment challenge counts by kind.
func (m *Metrics) RecordChallenge(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.challenges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTopupPaid increments paid top-up counts.
func (m *Metrics) RecordTopupPaid(ctx context.Context) {
	if m == nil {
		return
	}
	m.topupsPaid.Add(ctx, 1)
}

// RecordPayout increments payout counts by outcome.
func (m *Metrics) RecordPayout(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.payouts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRailError increments payment rail failure counts by operation.
func (m *Metrics) RecordRailError(ctx context.Context, op string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("op", strings.TrimSpace(op)))
	m.railErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
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

var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome":     {},
	"status_code": {},
	"kind":        {},
	"op":          {},
	"job":         {},
	"reason":      {},
	"endpoint":    {},
	"share":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

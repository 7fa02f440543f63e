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
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/fx"
)

// Config configures the OTLP metric pipeline.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// NewProvider builds a metric.MeterProvider. When disabled it returns a
// noop provider so instrumented code paths never need nil checks.
func NewProvider(lc fx.Lifecycle, cfg Config) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		return noopmetric.NewMeterProvider(), nil
	}

	ctx := context.Background()

	var exporter sdkmetric.Exporter
	var err error
	switch strings.ToLower(strings.TrimSpace(cfg.ExporterProtocol)) {
	case "http", "http/protobuf":
		exporter, err = otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(cfg.ExporterEndpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.ExporterEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("build metric resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)
	otel.SetMeterProvider(provider)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return provider.Shutdown(ctx)
		},
	})

	return provider, nil
}

// Metrics exposes counters for the request lifecycle.
type Metrics struct {
	requestsOpened    metric.Int64Counter
	bankDecisions     metric.Int64Counter
	donorDecisions    metric.Int64Counter
	requestsClosed    metric.Int64Counter
	inventoryChanges  metric.Int64Counter
	rateLimitAllowed  metric.Int64Counter
	rateLimitRejected metric.Int64Counter
}

func New(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter("bloodbridge")

	requestsOpened, err := meter.Int64Counter("bloodbridge.requests.opened",
		metric.WithDescription("Requests opened, by kind and audience"))
	if err != nil {
		return nil, err
	}
	bankDecisions, err := meter.Int64Counter("bloodbridge.bank.decisions",
		metric.WithDescription("Blood bank accept and reject decisions, by outcome"))
	if err != nil {
		return nil, err
	}
	donorDecisions, err := meter.Int64Counter("bloodbridge.donor.decisions",
		metric.WithDescription("Donor accept and reject decisions, by outcome"))
	if err != nil {
		return nil, err
	}
	requestsClosed, err := meter.Int64Counter("bloodbridge.requests.closed",
		metric.WithDescription("Requests that reached a terminal state"))
	if err != nil {
		return nil, err
	}
	inventoryChanges, err := meter.Int64Counter("bloodbridge.inventory.changes",
		metric.WithDescription("Inventory ledger rows appended, by action"))
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("bloodbridge.ratelimit.allowed")
	if err != nil {
		return nil, err
	}
	rateLimitRejected, err := meter.Int64Counter("bloodbridge.ratelimit.rejected")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requestsOpened:    requestsOpened,
		bankDecisions:     bankDecisions,
		donorDecisions:    donorDecisions,
		requestsClosed:    requestsClosed,
		inventoryChanges:  inventoryChanges,
		rateLimitAllowed:  rateLimitAllowed,
		rateLimitRejected: rateLimitRejected,
	}, nil
}

func (m *Metrics) RecordRequestOpened(ctx context.Context, kind, audience string) {
	if m == nil {
		return
	}
	m.requestsOpened.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("kind", kind),
		attribute.String("audience", audience),
	)...))
}

func (m *Metrics) RecordBankDecision(ctx context.Context, action, outcome string) {
	if m == nil {
		return
	}
	m.bankDecisions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	)...))
}

func (m *Metrics) RecordDonorDecision(ctx context.Context, action, outcome string) {
	if m == nil {
		return
	}
	m.donorDecisions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	)...))
}

func (m *Metrics) RecordRequestClosed(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.requestsClosed.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("outcome", outcome),
	)...))
}

func (m *Metrics) RecordInventoryChange(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.inventoryChanges.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("action", action),
	)...))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context) {
	if m == nil {
		return
	}
	m.rateLimitAllowed.Add(ctx, 1)
}

func (m *Metrics) RecordRateLimitRejected(ctx context.Context) {
	if m == nil {
		return
	}
	m.rateLimitRejected.Add(ctx, 1)
}

var allowedAttributeKeys = map[string]struct{}{
	"kind":     {},
	"audience": {},
	"action":   {},
	"outcome":  {},
	"route":    {},
	"method":   {},
	"status":   {},
}

// FilterAttributes drops attributes outside the low-cardinality allowlist.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedAttributeKeys[string(attr.Key)]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}

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
	claimTransitions metric.Int64Counter
	validationFails  metric.Int64Counter
	reconciliations  metric.Int64Counter
	remittanceLines  metric.Int64Counter
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

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "revcycle"
	}
	meter := provider.Meter(name)

	claimTransitions, err := meter.Int64Counter("revcycle_claim_transitions_total")
	if err != nil {
		return nil, err
	}
	validationFails, err := meter.Int64Counter("revcycle_service_validation_failures_total")
	if err != nil {
		return nil, err
	}
	reconciliations, err := meter.Int64Counter("revcycle_reconciliations_total")
	if err != nil {
		return nil, err
	}
	remittanceLines, err := meter.Int64Counter("revcycle_remittance_lines_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		claimTransitions: claimTransitions,
		validationFails:  validationFails,
		reconciliations:  reconciliations,
		remittanceLines:  remittanceLines,
	}, nil
}

// RecordClaimTransition counts lifecycle transitions by source and target.
func (m *Metrics) RecordClaimTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.claimTransitions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("from_status", strings.TrimSpace(from)),
		attribute.String("to_status", strings.TrimSpace(to)),
	)...))
}

// RecordValidationFailure counts billing-readiness rejections by error code.
func (m *Metrics) RecordValidationFailure(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.validationFails.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("code", strings.TrimSpace(code)),
	)...))
}

// RecordReconciliation counts reconciliation outcomes by source and status.
func (m *Metrics) RecordReconciliation(ctx context.Context, source, status string) {
	if m == nil {
		return
	}
	m.reconciliations.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("status", strings.TrimSpace(status)),
	)...))
}

// RecordRemittanceLines counts imported remittance detail lines by outcome.
func (m *Metrics) RecordRemittanceLines(ctx context.Context, outcome string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.remittanceLines.Add(ctx, n, metric.WithAttributes(FilterAttributes(
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)...))
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
	"from_status": {},
	"to_status":   {},
	"code":        {},
	"source":      {},
	"status":      {},
	"outcome":     {},
	"status_code": {},
	"endpoint":    {},
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

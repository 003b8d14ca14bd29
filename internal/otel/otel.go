// Package otel sets up OpenTelemetry for reverse-turing.
//
// Conversations, rounds and every model call are traced; token usage and
// turn outcomes are counted. Both are exported to an OTLP HTTP endpoint
// taken from the config file or OTEL_EXPORTER_OTLP_ENDPOINT. Without an
// endpoint the global no-op providers stay in place and nothing is exported.
//
// Custom exporter headers (e.g. Langfuse basic auth) come from the config
// file or OTEL_EXPORTER_OTLP_HEADERS.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "reverse-turing"

// metricInterval is how often cumulative counters are pushed. A single
// conversation is short, so Shutdown flushes whatever is left.
const metricInterval = 10 * time.Second

// Version is the service version reported in the resource. The CLI sets it
// from the linker-injected build version.
var Version = "dev"

// Config holds the exporter settings.
type Config struct {
	Endpoint string // OTLP base URL, e.g. "http://localhost:3000/api/public/otel"
	Headers  string // "key=value,key2=value2", same format as OTEL_EXPORTER_OTLP_HEADERS
}

// Telemetry owns the SDK providers and the metric instruments.
type Telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	Tracer  trace.Tracer
	Metrics *Metrics
}

// ParseHeaders splits a "key=value,key2=value2" string. Pairs without a key
// are dropped.
func ParseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(val)
	}
	return headers
}

// Init registers OTLP exporters when cfg.Endpoint is set and creates the
// metric instruments. With an empty endpoint it still returns a usable
// Telemetry backed by the global no-op providers.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	t := &Telemetry{}

	if cfg.Endpoint != "" {
		if err := t.startExporters(ctx, cfg); err != nil {
			return nil, err
		}
	}

	t.Tracer = otel.Tracer(serviceName)

	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("otel metrics: %w", err)
	}
	t.Metrics = metrics

	return t, nil
}

func (t *Telemetry) startExporters(ctx context.Context, cfg Config) error {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(Version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return fmt.Errorf("otel resource: %w", err)
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: invalid endpoint URL %q: %w", cfg.Endpoint, err)
	}
	if u.Host == "" {
		return fmt.Errorf("otel: endpoint %q has no host", cfg.Endpoint)
	}

	// WithEndpoint takes host:port only; the signal suffix goes on the path.
	basePath := strings.TrimRight(u.Path, "/")
	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(u.Host),
		otlptracehttp.WithURLPath(basePath + "/v1/traces"),
	}
	metricOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(u.Host),
		otlpmetrichttp.WithURLPath(basePath + "/v1/metrics"),
	}
	if u.Scheme == "http" {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}
	if headers := ParseHeaders(cfg.Headers); len(headers) > 0 {
		traceOpts = append(traceOpts, otlptracehttp.WithHeaders(headers))
		metricOpts = append(metricOpts, otlpmetrichttp.WithHeaders(headers))
	}

	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return fmt.Errorf("otel trace exporter: %w", err)
	}
	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return fmt.Errorf("otel metric exporter: %w", err)
	}

	t.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	t.mp = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
			sdkmetric.WithInterval(metricInterval))),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(t.tp)
	otel.SetMeterProvider(t.mp)
	return nil
}

// Shutdown flushes pending spans and metrics.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tp != nil {
		errs = append(errs, t.tp.Shutdown(ctx))
	}
	if t.mp != nil {
		errs = append(errs, t.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Package telemetry installs an OpenTelemetry meter provider backed by a
// Prometheus exporter and exposes the scrape handler.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

// Telemetry owns the meter provider and its registry.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler
}

// Setup builds a meter provider that exports to a private Prometheus
// registry. When global is true it also becomes the global provider, so
// instruments created through otel.Meter report to it.
func Setup(ctx context.Context, service, version string, global bool) (*Telemetry, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(version),
			attribute.String("voicevox.binding", "vvtts"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build telemetry resource: %w", err)
	}

	reg := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("unable to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	if global {
		otel.SetMeterProvider(provider)
	}

	return &Telemetry{
		provider: provider,
		handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, nil
}

// Provider returns the meter provider.
func (t *Telemetry) Provider() *sdkmetric.MeterProvider { return t.provider }

// Handler serves the Prometheus text format.
func (t *Telemetry) Handler() http.Handler { return t.handler }

// Shutdown flushes and stops the provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.provider.Shutdown(ctx) //nolint:wrapcheck
}

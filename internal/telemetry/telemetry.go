// Package telemetry exports run metrics over OTLP/HTTP when
// CHILDPROC_OTEL_METRICS_URL names an endpoint. Without it every recording
// call goes to the no-op global meter.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	EnvMetricsURL = "CHILDPROC_OTEL_METRICS_URL"
	EnvInterval   = "CHILDPROC_OTEL_INTERVAL" // Go duration, e.g. "10s"

	DefaultInterval = 30 * time.Second
)

// settings describe where and how often metrics are pushed.
type settings struct {
	endpoint string
	interval time.Duration
}

// settingsFromEnv reports false when export is not configured. A malformed
// or non-positive interval falls back to DefaultInterval.
func settingsFromEnv() (settings, bool) {
	s := settings{endpoint: os.Getenv(EnvMetricsURL), interval: DefaultInterval}
	if s.endpoint == "" {
		return s, false
	}
	if d, err := time.ParseDuration(os.Getenv(EnvInterval)); err == nil && d > 0 {
		s.interval = d
	}
	return s, true
}

// Provider owns the meter provider installed by Init.
type Provider struct {
	mp   *sdkmetric.MeterProvider
	once sync.Once
	err  error
}

// Shutdown pushes what is pending and stops exporting. Only the first call
// does any work. A nil Provider is a no-op.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.once.Do(func() {
		if err := p.mp.Shutdown(ctx); err != nil {
			p.err = fmt.Errorf("telemetry shutdown: %w", err)
		}
	})
	return p.err
}

var started struct {
	once sync.Once
	p    *Provider
	err  error
}

// Init runs once per process; later calls return the first result whatever
// their arguments. The Provider is nil when export is not configured.
func Init(ctx context.Context, service, version string) (*Provider, error) {
	started.once.Do(func() {
		s, ok := settingsFromEnv()
		if !ok {
			return
		}
		started.p, started.err = start(ctx, s, service, version)
	})
	return started.p, started.err
}

func start(ctx context.Context, s settings, service, version string) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("describing resource: %w", err)
	}

	exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(s.endpoint))
	if err != nil {
		return nil, fmt.Errorf("creating exporter for %s: %w", s.endpoint, err)
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(s.interval))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))

	otel.SetMeterProvider(mp)
	initInstruments()
	return &Provider{mp: mp}, nil
}

package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter provides OpenTelemetry metrics export following OTel standards
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	registry      *promclient.Registry
	collector     Collector

	meter              metric.Meter
	queueLengthGauge   metric.Int64ObservableGauge
	statusCountGauge   metric.Int64ObservableGauge
	throughputGauge    metric.Int64ObservableGauge
	breakerStateGauge  metric.Int64ObservableGauge
	activeWorkersGauge metric.Int64ObservableGauge
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format
// Each exporter scrapes into its own registry
func NewOTelExporter(collector Collector) (*OTelExporter, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	// Create meter provider
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	// Create meter with service info
	meter := meterProvider.Meter(
		"webhook-dispatch",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		registry:      registry,
		collector:     collector,
		meter:         meter,
	}

	// Register metrics instruments
	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	oe.queueLengthGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.queue.length",
		metric.WithDescription("Number of items in the live and dead-letter queues"),
		metric.WithUnit("{items}"),
		metric.WithInt64Callback(oe.observeQueueLengths),
	)
	if err != nil {
		return fmt.Errorf("creating queue length gauge: %w", err)
	}

	oe.statusCountGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.delivery.count",
		metric.WithDescription("Number of recorded deliveries by status"),
		metric.WithUnit("{deliveries}"),
		metric.WithInt64Callback(oe.observeStatusCounts),
	)
	if err != nil {
		return fmt.Errorf("creating status count gauge: %w", err)
	}

	oe.throughputGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.throughput",
		metric.WithDescription("Number of successful deliveries over time window"),
		metric.WithUnit("{deliveries}"),
		metric.WithInt64Callback(oe.observeThroughput),
	)
	if err != nil {
		return fmt.Errorf("creating throughput gauge: %w", err)
	}

	oe.breakerStateGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.breaker.circuits",
		metric.WithDescription("Number of destinations per circuit state"),
		metric.WithUnit("{circuits}"),
		metric.WithInt64Callback(oe.observeBreakerStates),
	)
	if err != nil {
		return fmt.Errorf("creating breaker state gauge: %w", err)
	}

	oe.activeWorkersGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.workers.active",
		metric.WithDescription("Number of queue runners with a live heartbeat"),
		metric.WithUnit("{workers}"),
		metric.WithInt64Callback(oe.observeActiveWorkers),
	)
	if err != nil {
		return fmt.Errorf("creating active workers gauge: %w", err)
	}

	return nil
}

// observeQueueLengths is a callback that reports queue lengths
func (oe *OTelExporter) observeQueueLengths(ctx context.Context, observer metric.Int64Observer) error {
	queueLengths, err := oe.collector.GetQueueLengths(ctx)
	if err != nil {
		return err
	}

	for name, length := range queueLengths {
		observer.Observe(length, metric.WithAttributes(
			attribute.String("queue.name", name),
		))
	}

	return nil
}

// observeStatusCounts is a callback that reports delivery counts by status
func (oe *OTelExporter) observeStatusCounts(ctx context.Context, observer metric.Int64Observer) error {
	statusCounts, err := oe.collector.GetStatusCounts(ctx)
	if err != nil {
		return err
	}

	for status, count := range statusCounts {
		observer.Observe(count, metric.WithAttributes(
			attribute.String("delivery.status", status),
		))
	}

	return nil
}

// observeThroughput is a callback that reports throughput metrics
func (oe *OTelExporter) observeThroughput(ctx context.Context, observer metric.Int64Observer) error {
	throughput, err := oe.collector.GetThroughput(ctx)
	if err != nil {
		return err
	}

	observer.Observe(throughput.LastMinute, metric.WithAttributes(
		attribute.String("time.window", "1m"),
	))
	observer.Observe(throughput.LastFiveMinutes, metric.WithAttributes(
		attribute.String("time.window", "5m"),
	))
	observer.Observe(throughput.LastFifteenMinutes, metric.WithAttributes(
		attribute.String("time.window", "15m"),
	))

	return nil
}

// observeActiveWorkers is a callback that reports active worker counts
func (oe *OTelExporter) observeActiveWorkers(ctx context.Context, observer metric.Int64Observer) error {
	workers, err := oe.collector.GetActiveWorkers(ctx)
	if err != nil {
		return err
	}

	idle, processing := int64(0), int64(0)
	for _, w := range workers {
		if w.Status == "processing" {
			processing++
		} else {
			idle++
		}
	}
	observer.Observe(idle, metric.WithAttributes(attribute.String("worker.status", "idle")))
	observer.Observe(processing, metric.WithAttributes(attribute.String("worker.status", "processing")))

	return nil
}

func (oe *OTelExporter) observeBreakerStates(ctx context.Context, observer metric.Int64Observer) error {
	states, err := oe.collector.GetBreakerStates(ctx)
	if err != nil {
		return err
	}

	for state, count := range states {
		observer.Observe(count, metric.WithAttributes(
			attribute.String("circuit.state", state),
		))
	}

	return nil
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	return promhttp.HandlerFor(oe.registry, promhttp.HandlerOpts{})
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}

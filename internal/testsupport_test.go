package internal

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry"
	"github.com/donkeithross3-commits/ma-tracker-relay/telemetry/metricbundle"
)

func newTestTelemetryClient(t *testing.T) *telemetry.Client {
	t.Helper()
	ctx := context.Background()
	client, err := telemetry.New(ctx, "relay-test", "test",
		telemetry.WithLogsDisabled(),
		telemetry.WithMetricsDisabled(),
		telemetry.WithTracesDisabled(),
	)
	if err != nil {
		t.Fatalf("failed to init telemetry: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = client.Shutdown(shutdownCtx)
	})
	return client
}

func newTestRelayMetrics(t *testing.T) *metricbundle.RelayMetrics {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})
	meter := provider.Meter("relay-test")
	metrics, err := metricbundle.NewRelayMetrics(meter)
	if err != nil {
		t.Fatalf("failed to create relay metrics: %v", err)
	}
	return metrics
}

func newTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.RouteTimeout = 200 * time.Millisecond
	cfg.ScanTimeout = 400 * time.Millisecond
	return cfg
}

package observability

import (
	"context"
	"testing"

	"github.com/signalsfoundry/swath-geolocator/internal/logging"
)

func TestTracingSampleRatioOutOfRange(t *testing.T) {
	for _, raw := range []string{"3", "-0.5", "half"} {
		t.Setenv("GEOLOC_TRACING_SAMPLE_RATIO", raw)
		if got := TracingConfigFromEnv().SampleRatio; got != 1 {
			t.Fatalf("ratio %q gave %v, want 1", raw, got)
		}
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, logging.Noop())
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

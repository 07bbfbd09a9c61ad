package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

// initTelemetry installs fresh global providers for the duration of the test.
func initTelemetry(t *testing.T, cfg ProviderConfig) *Telemetry {
	t.Helper()
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	tel, err := InitProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() {
		_ = tel.Shutdown(context.Background())
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})
	return tel
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics: status %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestInitProvider_ExportsToGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := initTelemetry(t, ProviderConfig{Registry: reg, TraceSampleRatio: 1})
	if tel.Registry != reg {
		t.Fatal("Telemetry.Registry should be the configured registry")
	}

	m, err := NewMetrics(tel.MeterProvider)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordQueueDepth(context.Background(), "utterances", 3)

	body := scrape(t, tel.Handler())
	if !strings.Contains(body, "harken_queue_depth") {
		t.Errorf("scrape missing harken_queue_depth:\n%s", body)
	}
	if !strings.Contains(body, `queue="utterances"`) {
		t.Errorf("scrape missing queue label:\n%s", body)
	}
	if strings.Contains(body, "go_goroutines") {
		t.Error("a caller-supplied registry should not get the runtime collectors")
	}
}

func TestInitProvider_DefaultRegistryHasRuntimeCollectors(t *testing.T) {
	tel := initTelemetry(t, ProviderConfig{TraceSampleRatio: 1})
	if tel.Registry == nil {
		t.Fatal("Registry should be created when none is given")
	}
	if body := scrape(t, tel.Handler()); !strings.Contains(body, "go_goroutines") {
		t.Errorf("scrape missing go runtime metrics:\n%s", body)
	}
}

func TestInitProvider_SampleRatio(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  bool
	}{
		{name: "all", ratio: 1, want: true},
		{name: "none", ratio: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tel := initTelemetry(t, ProviderConfig{Registry: prometheus.NewRegistry(), TraceSampleRatio: tt.ratio})
			_, span := tel.TracerProvider.Tracer("test").Start(context.Background(), "root")
			defer span.End()
			if got := span.SpanContext().IsSampled(); got != tt.want {
				t.Errorf("IsSampled = %v, want %v", got, tt.want)
			}
		})
	}
}

package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestSetup_ExportsCounters(t *testing.T) {
	ctx := context.Background()
	tel, err := Setup(ctx, "vvtts-test", "v0.0.0", false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(ctx) })

	counter, err := tel.Provider().Meter("test").Int64Counter("vvtts.test.requests")
	if err != nil {
		t.Fatal(err)
	}
	counter.Add(ctx, 3, metric.WithAttributes(attribute.String("kind", "tts")))

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	out := string(body)
	if !strings.Contains(out, "vvtts_test_requests_total") {
		t.Fatalf("counter missing from scrape:\n%s", out)
	}
	if !strings.Contains(out, `kind="tts"`) {
		t.Errorf("attribute missing from scrape:\n%s", out)
	}
}

func TestSetup_SeparateRegistries(t *testing.T) {
	ctx := context.Background()
	for range 2 {
		tel, err := Setup(ctx, "vvtts-test", "v0.0.0", false)
		if err != nil {
			t.Fatalf("second setup should not collide: %v", err)
		}
		_ = tel.Shutdown(ctx)
	}
}

func TestShutdown_Nil(t *testing.T) {
	var tel *Telemetry
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("nil Shutdown returned %v", err)
	}
}

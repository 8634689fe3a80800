package telemetry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/SGK112/ai-website-builder-sub004/config"
)

func TestInitTracer_Stdout(t *testing.T) {
	shutdown, err := InitTracer("generation-router-test", &config.Config{OTELExporterType: "stdout"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	defer shutdown()

	_, span := otel.Tracer("test").Start(context.Background(), "router.decide")
	if !span.SpanContext().IsValid() {
		t.Error("Expected a recording span from the installed provider")
	}
	span.End()
}

func TestInitTracer_UnknownExporter(t *testing.T) {
	if _, err := InitTracer("x", &config.Config{OTELExporterType: "zipkin"}, slog.Default()); err == nil {
		t.Error("Expected error for unknown exporter type")
	}
}

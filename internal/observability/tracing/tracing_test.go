package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aryan0dhankhar/farmorders/pkg/config"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TracingConfig{}, "farmorders", "test", nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestStartEndRecordsErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := Start(context.Background(), "OrderService.SubmitOrder")
	if TraceID(ctx) == "" {
		t.Fatal("expected a trace id inside the span")
	}
	End(span, errors.New("below ordered total"))

	_, plain := Start(context.Background(), "OrderService.GetOrder")
	End(plain, nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error || len(spans[0].Events()) == 0 {
		t.Errorf("failed span should carry an error status and event, got %+v", spans[0].Status())
	}
	if spans[1].Status().Code == codes.Error {
		t.Errorf("successful span marked as error")
	}
	if TraceID(context.Background()) != "" {
		t.Error("expected no trace id outside a span")
	}
}

package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestOperationSuccess(t *testing.T) {
	recorder := installRecorder(t)

	op := StartOperation(context.Background(), "session.start",
		attribute.String("scene", "/jobs/comp.nk"))
	op.End(nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "session.start" {
		t.Errorf("span name = %q, want %q", span.Name(), "session.start")
	}
	if span.Status().Code == codes.Error {
		t.Errorf("status = %v, want not error", span.Status())
	}
	found := false
	for _, attr := range span.Attributes() {
		if attr.Key == "scene" && attr.Value.AsString() == "/jobs/comp.nk" {
			found = true
		}
	}
	if !found {
		t.Errorf("attributes = %v, want scene attribute", span.Attributes())
	}
}

func TestOperationFailure(t *testing.T) {
	recorder := installRecorder(t)

	op := StartOperation(context.Background(), "session.render")
	op.End(errors.New("worker reported an error"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Status().Code != codes.Error {
		t.Errorf("status code = %v, want error", span.Status().Code)
	}
	if span.Status().Description != "worker reported an error" {
		t.Errorf("status description = %q", span.Status().Description)
	}
	if len(span.Events()) == 0 {
		t.Error("no recorded error event")
	}
}

func TestRunReturnsFnError(t *testing.T) {
	recorder := installRecorder(t)
	wantErr := errors.New("boom")

	err := Run(context.Background(), "session.cleanup", func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run() error = %v, want %v", err, wantErr)
	}
	if len(recorder.Ended()) != 1 {
		t.Errorf("ended spans = %d, want 1", len(recorder.Ended()))
	}
}

func TestNilOperationIsSafe(t *testing.T) {
	var op *Operation
	op.End(nil)
	if op.Context() == nil {
		t.Error("Context() = nil")
	}
}

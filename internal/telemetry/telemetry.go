// Package telemetry traces session lifecycle operations. Operations are
// cheap no-ops when no tracer provider is installed.
package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "farmhand"

// Tracer returns the process tracer for session operations.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Operation is one traced lifecycle method: a span that ends with either a
// clean End(nil) or a recorded failure.
type Operation struct {
	ctx  context.Context
	span trace.Span
}

// StartOperation opens a span named name under ctx. attrs annotate the span.
func StartOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) *Operation {
	spanCtx, span := Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
	return &Operation{ctx: spanCtx, span: span}
}

// Context returns the span context for nested operations.
func (o *Operation) Context() context.Context {
	if o == nil || o.ctx == nil {
		return context.Background()
	}
	return o.ctx
}

// End closes the operation. A non-nil err marks the span failed.
func (o *Operation) End(err error) {
	if o == nil || o.span == nil {
		return
	}
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	o.span.End()
}

// Run traces fn as a span named name, recording its error.
func Run(ctx context.Context, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	op := StartOperation(ctx, name, attrs...)
	err := fn(op.Context())
	op.End(err)
	return err
}

package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TelemetryOutput installs a tracer provider whose spans render as step
// lines on stderr, so lifecycle operations show up as they finish.
type TelemetryOutput struct {
	provider *sdktrace.TracerProvider
}

// InstallTelemetry replaces the global tracer provider. Call Close before
// process exit to flush.
func InstallTelemetry() *TelemetryOutput {
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(&stepSpanProcessor{}))
	otel.SetTracerProvider(provider)
	return &TelemetryOutput{provider: provider}
}

func (o *TelemetryOutput) Close() {
	if o == nil || o.provider == nil {
		return
	}
	_ = o.provider.Shutdown(context.Background())
}

type stepSpanProcessor struct{}

func (p *stepSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *stepSpanProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	status := span.Status()
	elapsed := span.EndTime().Sub(span.StartTime()).Round(10 * time.Millisecond)
	if status.Code == codes.Error {
		msg := strings.TrimSpace(status.Description)
		if msg == "" {
			msg = "failed"
		}
		fmt.Fprintln(os.Stderr, ErrorMsg("%s (%s) %s", span.Name(), elapsed, Muted(msg)))
		return
	}
	fmt.Fprintln(os.Stderr, SuccessMsg("%s (%s)", span.Name(), elapsed))
}

func (p *stepSpanProcessor) Shutdown(context.Context) error   { return nil }
func (p *stepSpanProcessor) ForceFlush(context.Context) error { return nil }

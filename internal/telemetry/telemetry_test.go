package telemetry

import (
	"context"
	"io"
	"testing"
)

func TestSetupAndShutdown(t *testing.T) {
	providers, err := Setup(io.Discard)
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	if err := providers.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}

func TestShutdownNilProvidersIsNoop(t *testing.T) {
	var p *Providers
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() on nil error: %v", err)
	}
}

func TestStartRequestSpanReturnsSpan(t *testing.T) {
	if _, err := Setup(io.Discard); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	ctx, span := StartRequestSpan(context.Background(), "dst1", "sse")
	if span == nil {
		t.Fatal("expected non-nil span")
	}
	span.End()
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
}

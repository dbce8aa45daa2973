package emit

import (
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingEmitter() (*OTelEmitter, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewOTelEmitter(provider.Tracer("test")), recorder
}

func TestOTelEmitterCreatesSpanWithAttributes(t *testing.T) {
	em, recorder := newRecordingEmitter()

	em.Emit(Event{
		RunID: "run-1",
		Step:  4,
		Stage: "respond",
		Msg:   "stage_completed",
		Meta:  map[string]interface{}{"status": "processing", "duration_ms": int64(120)},
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "stage_completed" {
		t.Fatalf("span name %q, want stage_completed", span.Name())
	}

	attrs := make(map[string]interface{})
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["tutorflow.run_id"] != "run-1" {
		t.Fatalf("missing run id attribute: %v", attrs)
	}
	if attrs["tutorflow.stage"] != "respond" {
		t.Fatalf("missing stage attribute: %v", attrs)
	}
	if attrs["tutorflow.status"] != "processing" {
		t.Fatalf("missing meta attribute: %v", attrs)
	}
}

func TestOTelEmitterMarksErrors(t *testing.T) {
	em, recorder := newRecordingEmitter()

	em.Emit(Event{
		Msg:  "stage_completed",
		Meta: map[string]interface{}{"error": "timeout in respond"},
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", spans[0].Status())
	}
}

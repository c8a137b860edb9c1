package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestResourceAttributes(t *testing.T) {
	tests := []struct {
		name string
		cfg  TracerConfig
		want map[attribute.Key]string
		skip []attribute.Key
	}{
		{
			name: "defaults",
			cfg:  TracerConfig{ServiceVersion: "1.2.3"},
			want: map[attribute.Key]string{
				semconv.ServiceNameKey:    DefaultServiceName,
				semconv.ServiceVersionKey: "1.2.3",
			},
			skip: []attribute.Key{semconv.ServiceInstanceIDKey, semconv.DeploymentEnvironmentKey},
		},
		{
			name: "instance and environment",
			cfg:  TracerConfig{ServiceName: "dronepad-east", ServiceVersion: "1.2.3", InstanceID: "node-a", Environment: "production"},
			want: map[attribute.Key]string{
				semconv.ServiceNameKey:           "dronepad-east",
				semconv.ServiceInstanceIDKey:     "node-a",
				semconv.DeploymentEnvironmentKey: "production",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := map[attribute.Key]string{}
			for _, kv := range resourceAttributes(tt.cfg) {
				got[kv.Key] = kv.Value.AsString()
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
			for _, k := range tt.skip {
				if _, ok := got[k]; ok {
					t.Errorf("%s should be omitted", k)
				}
			}
		})
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, sdktrace.AlwaysSample().Description()},
		{2, sdktrace.AlwaysSample().Description()},
		{0, sdktrace.NeverSample().Description()},
		{-1, sdktrace.NeverSample().Description()},
		{0.25, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()},
	}
	for _, tt := range tests {
		if got := samplerFor(tt.rate).Description(); got != tt.want {
			t.Errorf("samplerFor(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracerConfig{Enabled: false}, zerolog.Nop())
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	_, span := StartSpan(context.Background(), "booking.CommitReservation")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Fatal("disabled tracing should produce no-op spans")
	}
}

func TestStartSpanUsesDronePadScope(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	_, span := StartSpan(context.Background(), "booking.CommitReservation", PadAttr(7), PayloadClassAttr("small"))
	span.SetAttributes(ReservationAttr("r-1"))
	RecordError(span, errors.New("slot unavailable"))
	RecordError(span, nil)
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	got := ended[0]
	if got.InstrumentationScope().Name != TracerName {
		t.Errorf("scope = %q, want %q", got.InstrumentationScope().Name, TracerName)
	}
	if got.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", got.Status().Code)
	}
	if len(got.Events()) != 1 {
		t.Errorf("expected 1 error event, got %d", len(got.Events()))
	}

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range got.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs[AttrPadID].AsInt64() != 7 {
		t.Errorf("pad_id = %v", attrs[AttrPadID])
	}
	if attrs[AttrPayloadClass].AsString() != "small" || attrs[AttrReservationID].AsString() != "r-1" {
		t.Errorf("unexpected attributes %v", attrs)
	}
}

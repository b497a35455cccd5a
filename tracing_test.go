// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"context"
	"reflect"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const testTraceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func testSpanContext(t *testing.T) trace.SpanContext {
	t.Helper()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	if err != nil {
		t.Fatalf("TraceIDFromHex() error = %v", err)
	}
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	if err != nil {
		t.Fatalf("SpanIDFromHex() error = %v", err)
	}

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
}

func TestAMQPPropagator_Fields(t *testing.T) {
	var _ propagation.TextMapPropagator = AMQPPropagator

	fields := AMQPPropagator.Fields()
	for _, expected := range []string{"traceparent", "tracestate", "baggage"} {
		found := false
		for _, field := range fields {
			if field == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("AMQPPropagator.Fields() missing expected field: %s", expected)
		}
	}
}

func TestAMQPHeader_SetGet(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		lookup   string
		expected map[string]any
	}{
		{
			name:     "basic set",
			key:      "traceparent",
			value:    testTraceparent,
			lookup:   "traceparent",
			expected: map[string]any{"traceparent": testTraceparent},
		},
		{
			name:     "uppercase key stored lower-cased",
			key:      "TRACEPARENT",
			value:    "v",
			lookup:   "TraceParent",
			expected: map[string]any{"traceparent": "v"},
		},
		{
			name:     "empty value",
			key:      "x-key",
			value:    "",
			lookup:   "x-key",
			expected: map[string]any{"x-key": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := make(AMQPHeader)
			header.Set(tt.key, tt.value)

			if !reflect.DeepEqual(map[string]any(header), tt.expected) {
				t.Errorf("AMQPHeader.Set() result = %v, want %v", map[string]any(header), tt.expected)
			}
			if got := header.Get(tt.lookup); got != tt.value {
				t.Errorf("AMQPHeader.Get(%q) = %q, want %q", tt.lookup, got, tt.value)
			}
		})
	}
}

func TestAMQPHeader_GetNonString(t *testing.T) {
	header := AMQPHeader{"retries": int32(3)}

	if got := header.Get("retries"); got != "" {
		t.Errorf("AMQPHeader.Get() on a non string value = %q, want empty", got)
	}
	if got := header.Get("missing"); got != "" {
		t.Errorf("AMQPHeader.Get() on a missing key = %q, want empty", got)
	}
}

func TestAMQPHeader_Keys(t *testing.T) {
	tests := []struct {
		name     string
		header   AMQPHeader
		expected []string
	}{
		{
			name:     "empty header",
			header:   AMQPHeader{},
			expected: []string{},
		},
		{
			name:     "sorted keys",
			header:   AMQPHeader{"z-key": "1", "a-key": "2", "m-key": 3},
			expected: []string{"a-key", "m-key", "z-key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.header.Keys(); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("AMQPHeader.Keys() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAMQPPropagator_RoundTrip(t *testing.T) {
	sc := testSpanContext(t)
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	header := AMQPHeader{}
	AMQPPropagator.Inject(ctx, header)

	if got := header.Get("traceparent"); got != testTraceparent {
		t.Fatalf("injected traceparent = %q, want %q", got, testTraceparent)
	}

	extracted := trace.SpanContextFromContext(AMQPPropagator.Extract(context.Background(), header))
	if extracted.TraceID() != sc.TraceID() {
		t.Errorf("extracted trace id = %v, want %v", extracted.TraceID(), sc.TraceID())
	}
	if extracted.SpanID() != sc.SpanID() {
		t.Errorf("extracted span id = %v, want %v", extracted.SpanID(), sc.SpanID())
	}
}

func TestNewConsumerSpan(t *testing.T) {
	tracer := otel.Tracer("test-tracer")

	tests := []struct {
		name        string
		header      amqp.Table
		expectTrace bool
	}{
		{
			name:   "no trace context",
			header: amqp.Table{},
		},
		{
			name:        "trace context in headers",
			header:      amqp.Table{"traceparent": testTraceparent},
			expectTrace: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, span := NewConsumerSpan(tracer, tt.header, "orders")
			defer span.End()

			if ctx == nil || span == nil {
				t.Fatal("NewConsumerSpan() returned a nil context or span")
			}

			sc := trace.SpanContextFromContext(ctx)
			if tt.expectTrace && sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
				t.Errorf("consumer span trace id = %v, want the header trace id", sc.TraceID())
			}
			if !tt.expectTrace && sc.IsValid() {
				t.Errorf("consumer span context = %v, want an invalid one", sc)
			}
		})
	}
}

func TestNewProducerSpan_KeepsParentTrace(t *testing.T) {
	sc := testSpanContext(t)
	parent := trace.ContextWithSpanContext(context.Background(), sc)

	ctx, span := NewProducerSpan(parent, otel.Tracer("test-tracer"), "orders")
	defer span.End()

	if got := trace.SpanContextFromContext(ctx).TraceID(); got != sc.TraceID() {
		t.Errorf("producer span trace id = %v, want %v", got, sc.TraceID())
	}
}

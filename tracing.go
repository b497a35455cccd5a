// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"context"
	"fmt"
	"sort"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// AMQPHeader adapts AMQP message headers to the otel TextMapCarrier interface.
// Keys are stored lower-cased.
type AMQPHeader amqp.Table

// AMQPPropagator propagates the trace context and the baggage through AMQP headers.
var AMQPPropagator = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})

// Set stores a header value under the lower-cased key.
func (h AMQPHeader) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Get returns the string value stored under key, or an empty string.
func (h AMQPHeader) Get(key string) string {
	value, ok := h[strings.ToLower(key)]
	if !ok {
		return ""
	}

	s, ok := value.(string)
	if !ok {
		return ""
	}

	return s
}

// Keys returns the sorted header keys.
func (h AMQPHeader) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// NewConsumerSpan starts a consumer span whose parent is extracted from the delivery headers.
func NewConsumerSpan(tracer trace.Tracer, header amqp.Table, typ string) (context.Context, trace.Span) {
	ctx := AMQPPropagator.Extract(context.Background(), AMQPHeader(header))

	return tracer.Start(ctx, fmt.Sprintf("consume %s", typ), trace.WithSpanKind(trace.SpanKindConsumer))
}

// NewProducerSpan starts a producer span for a message sent to exchange.
func NewProducerSpan(ctx context.Context, tracer trace.Tracer, exchange string) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("publish %s", exchange), trace.WithSpanKind(trace.SpanKindProducer))
}

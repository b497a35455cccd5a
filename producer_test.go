// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package amqplink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func newTestProducer(t *testing.T, broker *MockBroker) *Producer {
	t.Helper()

	p := newProducer("billing", broker, NewDirectExchange("invoices").RoutingKey("issued"))
	t.Cleanup(func() { p.Shutdown("") })

	return p
}

func TestNewProducer_Validation(t *testing.T) {
	useFakeDialer(t, nil)

	p, err := NewProducer("billing", NewConnectionInfo("localhost"), NewDirectExchange(""))
	assert.Nil(t, p)
	assert.Same(t, ErrInvalidExchange, err)

	p, err = NewProducer("billing", NewConnectionInfo("localhost").WithPort(0), NewDirectExchange("invoices"))
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestProducer_Send(t *testing.T) {
	broker := NewMockBroker()
	broker.SetConnected(true)
	p := newTestProducer(t, broker)
	require.NoError(t, p.Connect())

	before := time.Now()
	require.NoError(t, p.Send(context.Background(), []byte("invoice #1")))

	msg := broker.LastChannel().GetLastPublishedMessage()
	require.NotNil(t, msg)
	assert.Equal(t, "invoices", msg.Exchange)
	assert.Equal(t, "issued", msg.Key)
	assert.False(t, msg.Mandatory)
	assert.False(t, msg.Immediate)

	pub := msg.Publishing
	assert.Equal(t, []byte("invoice #1"), pub.Body)
	assert.Equal(t, "billing", pub.AppId)
	assert.Equal(t, "application/octet-stream", pub.ContentType)
	assert.Equal(t, amqp.Transient, pub.DeliveryMode)
	assert.Empty(t, pub.Expiration)
	assert.False(t, pub.Timestamp.Before(before.Truncate(time.Second)))

	id, err := uuid.Parse(pub.MessageId)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.NotContains(t, pub.Headers, "traceparent")
}

func TestProducer_SendUniqueMessageIDs(t *testing.T) {
	broker := NewMockBroker()
	broker.SetConnected(true)
	p := newTestProducer(t, broker)
	require.NoError(t, p.Connect())

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Send(context.Background(), []byte("x")))
	}

	seen := map[string]bool{}
	for _, m := range broker.LastChannel().GetPublishedMessages() {
		seen[m.Publishing.MessageId] = true
	}
	assert.Len(t, seen, 3)
}

func TestProducer_SendWithOptions(t *testing.T) {
	broker := NewMockBroker()
	broker.SetConnected(true)
	p := newTestProducer(t, broker)
	require.NoError(t, p.Connect())

	options := NewOption().
		WithDeliveryModePersistent().
		WithContentType("application/json").
		WithExpiration(30 * time.Second).
		WithHeaders(map[string]any{"tenant": "acme"}).
		Build()

	require.NoError(t, p.Send(context.Background(), []byte(`{"id":1}`), append(options, nil)...))

	pub := broker.LastChannel().GetLastPublishedMessage().Publishing
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, "30000", pub.Expiration)
	assert.Equal(t, "acme", pub.Headers["tenant"])
}

func TestProducer_SendInjectsTraceContext(t *testing.T) {
	broker := NewMockBroker()
	broker.SetConnected(true)
	p := newTestProducer(t, broker)
	require.NoError(t, p.Connect())

	ctx := trace.ContextWithRemoteSpanContext(context.Background(), testSpanContext(t))
	require.NoError(t, p.Send(ctx, []byte("traced")))

	headers := broker.LastChannel().GetLastPublishedMessage().Publishing.Headers
	traceparent, ok := headers["traceparent"].(string)
	require.True(t, ok, "traceparent header missing")
	assert.Contains(t, traceparent, testSpanContext(t).TraceID().String())
}

func TestProducer_SendNotConnected(t *testing.T) {
	broker := NewMockBroker()
	p := newTestProducer(t, broker)

	err := p.Send(context.Background(), []byte("dropped"))

	assert.ErrorIs(t, err, ErrConnectionBroken)
	assert.Empty(t, broker.Channels())
}

func TestProducer_SendAfterBrokerDrop(t *testing.T) {
	broker := NewMockBroker()
	broker.SetConnected(true)
	p := newTestProducer(t, broker)
	require.NoError(t, p.Connect())

	broker.SetConnected(false)
	broker.Emit(StatusEvent{Status: StatusDisconnected})

	assert.ErrorIs(t, p.Send(context.Background(), []byte("dropped")), ErrConnectionBroken)

	broker.SetConnected(true)
	broker.Emit(StatusEvent{Status: StatusCreated})

	require.NoError(t, p.Send(context.Background(), []byte("delivered")))
	assert.Len(t, broker.LastChannel().GetPublishedMessages(), 1)
}

func TestProducer_SendPublishFailure(t *testing.T) {
	failure := errors.New("channel/connection is not open")
	broker := NewMockBroker()
	broker.SetConnected(true)
	broker.SetChannelFactory(func() *MockAMQPChannel {
		ch := NewMockAMQPChannel()
		ch.SetPublishError(failure)
		return ch
	})
	p := newTestProducer(t, broker)
	require.NoError(t, p.Connect())

	err := p.Send(context.Background(), []byte("lost"))

	assert.ErrorIs(t, err, ErrPublish)
	assert.ErrorIs(t, err, failure)
	assert.Contains(t, err.Error(), "invoices")
}

func TestProducer_EndToEnd(t *testing.T) {
	d := useFakeDialer(t, nil)

	p, err := NewProducer("billing", NewConnectionInfo("producer.test"), NewFanoutExchange("events"), testBrokerConfig)
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown("") })

	// the broker may not be up yet, the producer then connects on its first connection
	_ = p.Connect()
	require.Eventually(t, p.IsConnected, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Send(context.Background(), []byte("hello")))

	channels := d.lastConn().Channels()
	require.Len(t, channels, 1)
	msg := channels[0].GetLastPublishedMessage()
	require.NotNil(t, msg)
	assert.Equal(t, "events", msg.Exchange)
	assert.Equal(t, []byte("hello"), msg.Publishing.Body)

	p.Shutdown("")
	assert.True(t, d.lastConn().IsClosed())
	assert.False(t, p.IsConnected())
}
